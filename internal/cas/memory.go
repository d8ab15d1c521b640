package cas

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// MemoryStore is an in-process Store used by tests and single-node demos;
// it implements the same content-addressing rule as GatewayStore without a
// network round trip.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Write stores data under its CIDv1(SHA2-256) address.
func (m *MemoryStore) Write(_ context.Context, data []byte) (string, error) {
	digest, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("cas: hashing: %w", err)
	}
	hash := cid.NewCidV1(cid.Raw, digest).String()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[hash]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		m.data[hash] = cp
	}
	return hash, nil
}

// Read returns the bytes written under hash, or ErrNotFound.
func (m *MemoryStore) Read(_ context.Context, hash string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.data[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}
