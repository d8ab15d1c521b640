package ledger

import (
	"context"
	"testing"
)

func TestMemoryLedgerWriteAdvancesLastBlock(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	b, err := l.GetLastBlock(ctx)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if b.BlockNumber != 0 {
		t.Fatalf("initial BlockNumber = %d, want 0", b.BlockNumber)
	}

	if err := l.Write(ctx, "anchor1"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b, err = l.GetLastBlock(ctx)
	if err != nil {
		t.Fatalf("GetLastBlock: %v", err)
	}
	if b.BlockNumber != 1 {
		t.Fatalf("BlockNumber after one write = %d, want 1", b.BlockNumber)
	}
}

func TestMemoryLedgerTransactionsSince(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	_ = l.Write(ctx, "a1")
	_ = l.Write(ctx, "a2")
	_ = l.Write(ctx, "a3")

	txns, err := l.TransactionsSince(ctx, 1)
	if err != nil {
		t.Fatalf("TransactionsSince: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("len(txns) = %d, want 2", len(txns))
	}
	if txns[0].AnchorFileHash != "a2" || txns[1].AnchorFileHash != "a3" {
		t.Fatalf("unexpected transactions: %+v", txns)
	}
}
