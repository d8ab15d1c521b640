// Package rooter implements the batching & anchoring pipeline: it queues
// submitted operation payloads, and on a periodic tick assembles a batch,
// writes a batch file and an anchor file to CAS, then writes the
// anchor-file hash to the ledger.
package rooter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sidetree-node/anchornode/internal/anchor"
	"github.com/sidetree-node/anchornode/internal/batch"
	"github.com/sidetree-node/anchornode/internal/cas"
	"github.com/sidetree-node/anchornode/internal/ledger"
	"github.com/sidetree-node/anchornode/internal/merkle"
	"github.com/sidetree-node/anchornode/internal/metrics"
	"github.com/sidetree-node/anchornode/internal/protocol"
)

// Rooter queues raw operation payloads and periodically anchors them.
//
// processing is a sole interlock over a tick, implemented as an atomic flag
// rather than a mutex because a running tick must cause a concurrent tick
// to return immediately (coalescing), not block and wait its turn.
type Rooter struct {
	mu    sync.Mutex // guards queue
	queue [][]byte

	processing atomic.Bool

	cas      cas.Store
	ledger   ledger.Ledger
	protocol *protocol.Table
	logger   *logrus.Logger

	cancel context.CancelFunc
}

// New builds a Rooter against the given CAS, ledger, and protocol table.
func New(store cas.Store, led ledger.Ledger, protoTable *protocol.Table, logger *logrus.Logger) *Rooter {
	if protoTable == nil {
		protoTable = protocol.Default()
	}
	return &Rooter{
		cas:      store,
		ledger:   led,
		protocol: protoTable,
		logger:   logger,
	}
}

// Add appends op to the tail of the pending queue. No size bound is
// enforced here; overflow is a policy decision for the surrounding system.
func (r *Rooter) Add(op []byte) {
	r.mu.Lock()
	r.queue = append(r.queue, op)
	r.mu.Unlock()
	metrics.QueueDepth.Set(float64(r.GetOperationQueueLength()))
}

// GetOperationQueueLength returns the number of operations currently
// pending.
func (r *Rooter) GetOperationQueueLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// StartPeriodicRooting schedules RootOperations at a fixed wall-clock
// interval until ctx is canceled or Stop is called.
func (r *Rooter) StartPeriodicRooting(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RootOperations(ctx)
			}
		}
	}()
}

// Stop cancels a periodic rooting loop started with StartPeriodicRooting.
func (r *Rooter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// peek returns up to n operations from the head of the queue without
// removing them, so a failed tick leaves the queue untouched.
func (r *Rooter) peek(n int) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.queue) {
		n = len(r.queue)
	}
	out := make([][]byte, n)
	copy(out, r.queue[:n])
	return out
}

// commit removes the first n operations from the queue. Called only after
// the ledger write for those operations has succeeded.
func (r *Rooter) commit(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = r.queue[n:]
}

// RootOperations runs one pipeline tick: tick coalescing, batch assembly,
// CAS writes, and the ledger anchor write. Operations are only dequeued
// after the ledger write succeeds (peek-then-commit), resolving the
// queue-loss weakness in favor of never losing an operation.
func (r *Rooter) RootOperations(ctx context.Context) {
	if !r.processing.CompareAndSwap(false, true) {
		return // a tick is already running; coalesce
	}
	defer r.processing.Store(false)

	last, err := r.ledger.GetLastBlock(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("rooter: fetching last block failed, will retry next tick")
		return
	}
	params := r.protocol.Get(last.BlockNumber + 1)

	batchOps := r.peek(params.MaxOperationsPerBatch)
	if len(batchOps) == 0 {
		return
	}

	batchFile := batch.FromOperations(batchOps)
	batchBuffer := batchFile.ToBuffer()

	batchFileHash, err := r.cas.Write(ctx, batchBuffer)
	if err != nil {
		r.logger.WithError(err).Warn("rooter: writing batch file to CAS failed, will retry next tick")
		return
	}

	tree, err := merkle.Build(batchOps, params.HashAlgorithmCode)
	if err != nil {
		r.logger.WithError(err).Error("rooter: building merkle tree failed")
		return
	}

	anchorFile := &anchor.File{BatchFileHash: batchFileHash, MerkleRoot: tree.Root()}
	anchorBuffer, err := anchorFile.ToBuffer()
	if err != nil {
		r.logger.WithError(err).Error("rooter: serializing anchor file failed")
		return
	}

	anchorFileHash, err := r.cas.Write(ctx, anchorBuffer)
	if err != nil {
		r.logger.WithError(err).Warn("rooter: writing anchor file to CAS failed, will retry next tick")
		return
	}

	if err := r.ledger.Write(ctx, anchorFileHash); err != nil {
		r.logger.WithError(err).Warn("rooter: writing anchor to ledger failed, will retry next tick")
		return
	}

	r.commit(len(batchOps))
	metrics.QueueDepth.Set(float64(r.GetOperationQueueLength()))
	metrics.TicksTotal.Inc()
	metrics.OperationsAnchoredTotal.Add(float64(len(batchOps)))
	r.logger.WithField("operations", len(batchOps)).WithField("anchor", anchorFileHash).Info("rooter: anchored batch")
}
