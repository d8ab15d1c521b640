// Package ledger defines the external ledger contract consumed by the
// Rooter and the Observer, plus an in-memory adapter and an Ethereum-backed
// adapter.
package ledger

import "context"

// Block is the minimal ledger head info the Rooter needs to size a batch.
type Block struct {
	BlockNumber uint64
}

// Transaction is what the Observer sees for each anchoring transaction it
// discovers on the ledger.
type Transaction struct {
	BlockNumber       uint64
	TransactionNumber uint64
	AnchorFileHash    string
}

// Ledger is the contract the core consumes. The ledger is the source of
// truth; this core never attempts consensus over it.
type Ledger interface {
	GetLastBlock(ctx context.Context) (Block, error)
	Write(ctx context.Context, anchorFileHash string) error
}

// Observable is implemented by adapters that can also enumerate anchoring
// transactions since a given block, for the Observer to replay.
type Observable interface {
	Ledger
	TransactionsSince(ctx context.Context, blockNumber uint64) ([]Transaction, error)
}
