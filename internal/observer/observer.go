// Package observer watches the ledger for new anchoring transactions,
// fetches the referenced anchor and batch files from CAS, and feeds the
// resolved operations to the Projection in ledger order. spec.md assumes
// this loop is present and correct; this is its concrete implementation.
package observer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sidetree-node/anchornode/internal/anchor"
	"github.com/sidetree-node/anchornode/internal/batch"
	"github.com/sidetree-node/anchornode/internal/cas"
	"github.com/sidetree-node/anchornode/internal/ledger"
	"github.com/sidetree-node/anchornode/internal/operation"
	"github.com/sidetree-node/anchornode/internal/projection"
)

// Observer polls an Observable ledger and drives a Projection.
type Observer struct {
	ledger     ledger.Observable
	cas        cas.Store
	projection *projection.Projection
	logger     *logrus.Logger

	lastSeenBlock uint64
}

// New builds an Observer starting from genesis (block 0).
func New(led ledger.Observable, store cas.Store, proj *projection.Projection, logger *logrus.Logger) *Observer {
	return &Observer{ledger: led, cas: store, projection: proj, logger: logger}
}

// Run polls on the given interval until ctx is canceled.
func (o *Observer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Poll(ctx); err != nil {
				o.logger.WithError(err).Warn("observer: poll failed, will retry")
			}
		}
	}
}

// Poll fetches and applies every transaction anchored since the last
// observed block, then advances the high-water mark.
func (o *Observer) Poll(ctx context.Context) error {
	txns, err := o.ledger.TransactionsSince(ctx, o.lastSeenBlock)
	if err != nil {
		return err
	}

	for _, txn := range txns {
		if err := o.applyTransaction(ctx, txn); err != nil {
			// Keep the high-water mark below this transaction's block so the
			// next poll retries this transaction (and anything after it)
			// instead of skipping it forever. Earlier transactions of the same
			// block are then re-applied, which Apply treats as duplicates.
			o.logger.WithError(err).WithField("block", txn.BlockNumber).Warn("observer: unresolvable transaction, will retry next poll")
			if txn.BlockNumber > 0 && o.lastSeenBlock >= txn.BlockNumber {
				o.lastSeenBlock = txn.BlockNumber - 1
			}
			break
		}
		if txn.BlockNumber > o.lastSeenBlock {
			o.lastSeenBlock = txn.BlockNumber
		}
	}
	return nil
}

func (o *Observer) applyTransaction(ctx context.Context, txn ledger.Transaction) error {
	anchorBuf, err := o.cas.Read(ctx, txn.AnchorFileHash)
	if err != nil {
		return err
	}
	anchorFile, err := anchor.FromBuffer(anchorBuf)
	if err != nil {
		return err
	}

	batchBuf, err := o.cas.Read(ctx, anchorFile.BatchFileHash)
	if err != nil {
		return err
	}
	batchFile, err := batch.FromBuffer(batchBuf)
	if err != nil {
		return err
	}

	for idx := 0; idx < batchFile.Len(); idx++ {
		raw, err := batchFile.GetOperationBuffer(idx)
		if err != nil {
			return err
		}
		op, err := operation.Decode(raw)
		if err != nil {
			o.logger.WithError(err).Warn("observer: skipping malformed operation")
			continue
		}
		op.BlockNumber = txn.BlockNumber
		op.TransactionNumber = txn.TransactionNumber
		op.OperationIndex = uint(idx)
		op.BatchFileHash = anchorFile.BatchFileHash

		if _, err := o.projection.Apply(op); err != nil {
			o.logger.WithError(err).Warn("observer: rejecting invalid operation")
		}
	}
	return nil
}

// Reorg rolls the projection back to before fromTransaction and resets the
// observer's high-water mark, for callers (e.g. a chain-reorg detector)
// that determine independently that the ledger has re-organized.
func (o *Observer) Reorg(fromBlock uint64, fromTransaction uint64) {
	o.projection.Rollback(fromTransaction)
	if fromBlock > 0 {
		o.lastSeenBlock = fromBlock - 1
	} else {
		o.lastSeenBlock = 0
	}
}
