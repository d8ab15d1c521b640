package cas

import (
	"bytes"
	"context"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	hash, err := store.Write(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := store.Read(ctx, hash)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("Read = %q, want %q", got, "hello")
	}
}

func TestMemoryStoreWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	h1, err := store.Write(ctx, []byte("same"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	h2, err := store.Write(ctx, []byte("same"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hashes differ for identical input: %s vs %s", h1, h2)
	}
}

func TestMemoryStoreReadUnknownHash(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Read(context.Background(), "nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
