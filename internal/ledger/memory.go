package ledger

import (
	"context"
	"sync"
)

// MemoryLedger is an in-process Observable used by tests and the
// single-node demo CLI path: each Write appends a new block whose
// transaction carries the anchor-file hash.
type MemoryLedger struct {
	mu   sync.Mutex
	txns []Transaction
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// GetLastBlock returns the block number of the most recent write, or 0 if
// none has happened yet.
func (l *MemoryLedger) GetLastBlock(_ context.Context) (Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.txns) == 0 {
		return Block{BlockNumber: 0}, nil
	}
	return Block{BlockNumber: l.txns[len(l.txns)-1].BlockNumber}, nil
}

// Write anchors anchorFileHash in a new block, one block and one
// transaction number per call.
func (l *MemoryLedger) Write(_ context.Context, anchorFileHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txns = append(l.txns, Transaction{
		BlockNumber:       uint64(len(l.txns) + 1),
		TransactionNumber: uint64(len(l.txns) + 1),
		AnchorFileHash:    anchorFileHash,
	})
	return nil
}

// TransactionsSince returns every transaction with BlockNumber strictly
// greater than blockNumber, in ledger order.
func (l *MemoryLedger) TransactionsSince(_ context.Context, blockNumber uint64) ([]Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transaction
	for _, tx := range l.txns {
		if tx.BlockNumber > blockNumber {
			out = append(out, tx)
		}
	}
	return out, nil
}
