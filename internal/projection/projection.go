// Package projection maintains an in-memory, rollback-capable projection of
// DID-document state, built by replaying operations observed on the
// ledger. It is main-memory only and fully rebuildable from the ledger and
// CAS; it keeps no durable state of its own.
package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sidetree-node/anchornode/internal/batch"
	"github.com/sidetree-node/anchornode/internal/cas"
	"github.com/sidetree-node/anchornode/internal/didpatch"
	"github.com/sidetree-node/anchornode/internal/metrics"
	"github.com/sidetree-node/anchornode/internal/operation"
	"github.com/sidetree-node/anchornode/internal/protocol"
)

// ErrInvalidOperation is returned by Apply when the resolved-transaction
// metadata required to order and store the operation is missing. This is a
// contract violation by the caller (the observer), not a recoverable
// runtime condition.
var ErrInvalidOperation = errors.New("projection: invalid operation metadata")

// Projection holds the two maps described by the data model: operation
// hash to operation metadata, and previous-version to chosen-next-version.
// Both are mutated only by Apply and Rollback and guarded by a single
// coarse RWMutex, matching the teacher's use of sync.RWMutex for
// process-wide mutable state.
type Projection struct {
	mu sync.RWMutex

	opInfoByHash map[operation.Hash]operation.Info
	chosenNext   map[operation.VersionId]operation.VersionId

	lastProcessedTransaction uint64

	cas           cas.Store
	protocolTable *protocol.Table
	didMethodName string
}

// New builds an empty Projection backed by store for lazy operation
// lookups.
func New(store cas.Store, protoTable *protocol.Table, didMethodName string) *Projection {
	if protoTable == nil {
		protoTable = protocol.Default()
	}
	return &Projection{
		opInfoByHash:  make(map[operation.Hash]operation.Info),
		chosenNext:    make(map[operation.VersionId]operation.VersionId),
		cas:           store,
		protocolTable: protoTable,
		didMethodName: didMethodName,
	}
}

// LastProcessedTransaction returns the highest transactionNumber fully
// applied so far. Apply only ever advances it, and a later-arriving
// duplicate that loses the timestamp race does not move it; Rollback(T)
// lowers it to T-1 (or 0 for T=0) when it is at or after T.
func (p *Projection) LastProcessedTransaction() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastProcessedTransaction
}

// Apply ingests a resolved operation. It returns the operation's hash, or
// an empty hash if the arrival lost the duplicate-resolution race (§4.5
// step 4: earliest timestamp wins).
func (p *Projection) Apply(op *operation.WriteOperation) (operation.Hash, error) {
	if op.BatchFileHash == "" {
		return "", fmt.Errorf("%w: missing batchFileHash", ErrInvalidOperation)
	}
	// BlockNumber, TransactionNumber and OperationIndex are all
	// legitimately zero for the very first anchored operation, so presence
	// is validated structurally by the caller constructing op from a
	// resolved transaction; batchFileHash is the one field that is never
	// legitimately empty.

	ts := op.Timestamp()
	params := p.protocolTable.Get(ts.BlockNumber)

	h, err := operation.Compute(op, params.HashAlgorithmCode)
	if err != nil {
		return "", fmt.Errorf("projection: hashing operation: %w", err)
	}
	info := operation.Info{
		BatchFileHash: op.BatchFileHash,
		Type:          op.Type,
		Timestamp:     ts,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.opInfoByHash[h]; ok {
		if existing.Timestamp.Less(ts) {
			// the stored entry is strictly earlier: the new arrival is a
			// discarded duplicate.
			return "", nil
		}
	}
	p.opInfoByHash[h] = info

	if op.PreviousOperationHash != "" {
		prev := op.PreviousOperationHash
		cur, ok := p.chosenNext[prev]
		if !ok {
			p.chosenNext[prev] = h
		} else if curInfo, ok := p.opInfoByHash[cur]; ok && !curInfo.Timestamp.Less(ts) {
			p.chosenNext[prev] = h
		}
	}

	if ts.TransactionNumber > p.lastProcessedTransaction {
		p.lastProcessedTransaction = ts.TransactionNumber
	}

	metrics.ProjectionOperationCount.Set(float64(len(p.opInfoByHash)))
	return h, nil
}

// Rollback discards every observation at or after transaction T, restoring
// the projection to the state it had immediately before T was first
// applied. chosenNext is pruned before opInfoByHash, since pruning
// chosenNext reads opInfoByHash for timestamps.
func (p *Projection) Rollback(transactionNumber uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for prev, next := range p.chosenNext {
		if info, ok := p.opInfoByHash[next]; ok && info.Timestamp.TransactionNumber >= transactionNumber {
			delete(p.chosenNext, prev)
		}
	}
	for h, info := range p.opInfoByHash {
		if info.Timestamp.TransactionNumber >= transactionNumber {
			delete(p.opInfoByHash, h)
		}
	}

	if p.lastProcessedTransaction >= transactionNumber && transactionNumber > 0 {
		p.lastProcessedTransaction = transactionNumber - 1
	} else if transactionNumber == 0 {
		p.lastProcessedTransaction = 0
	}

	metrics.ProjectionOperationCount.Set(float64(len(p.opInfoByHash)))
	metrics.RollbacksTotal.Inc()
}

// Previous returns op's PreviousOperationHash for v, or "" if v is a
// Create (a root) or unknown.
func (p *Projection) Previous(ctx context.Context, v operation.VersionId) (operation.VersionId, error) {
	op, err := p.getOperation(ctx, v)
	if err != nil {
		return "", err
	}
	if op == nil {
		return "", nil
	}
	return op.PreviousOperationHash, nil
}

// Next returns the chosen successor of v, or "" if none has been applied.
func (p *Projection) Next(v operation.VersionId) operation.VersionId {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chosenNext[v]
}

// First walks Previous until it reaches a root, returning the earliest
// known VersionId in v's chain. Returns "" immediately if v is unknown
// (fail-slow).
func (p *Projection) First(ctx context.Context, v operation.VersionId) (operation.VersionId, error) {
	if !p.known(v) {
		return "", nil
	}
	cur := v
	for {
		prev, err := p.Previous(ctx, cur)
		if err != nil {
			return "", err
		}
		if prev == "" {
			return cur, nil
		}
		cur = prev
	}
}

// Last walks Next until it reaches a version with no chosen successor.
func (p *Projection) Last(v operation.VersionId) operation.VersionId {
	cur := v
	for {
		next := p.Next(cur)
		if next == "" {
			return cur
		}
		cur = next
	}
}

func (p *Projection) known(v operation.VersionId) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.opInfoByHash[v]
	return ok
}

// Resolve returns the current DID document for the DID whose unique
// portion is the VersionId of its genesis Create operation.
func (p *Projection) Resolve(ctx context.Context, didUniquePortion operation.VersionId) (*didpatch.Document, error) {
	return p.Lookup(ctx, p.Last(didUniquePortion))
}

// Lookup reconstructs the DID document at version v by walking the
// predecessor chain forward from the genesis Create operation with an
// explicit stack, avoiding the stack-exhaustion risk of naive recursion
// over long chains.
func (p *Projection) Lookup(ctx context.Context, v operation.VersionId) (*didpatch.Document, error) {
	if v == "" || !p.known(v) {
		return nil, nil
	}

	var chain []*operation.WriteOperation
	cur := v
	for {
		op, err := p.getOperation(ctx, cur)
		if err != nil {
			return nil, err
		}
		if op == nil {
			return nil, nil
		}
		chain = append(chain, op)
		if op.Type == operation.TypeCreate {
			break
		}
		cur = op.PreviousOperationHash
		if cur == "" || !p.known(cur) {
			return nil, nil
		}
	}

	// chain is tail (v) to head (genesis); replay head to tail. The DID's
	// unique portion is always the genesis hash (cur, at loop break),
	// never the looked-up version v.
	genesis := chain[len(chain)-1]
	doc, err := didpatch.FromCreate(genesis, cur, p.didMethodName)
	if err != nil {
		return nil, err
	}
	for i := len(chain) - 2; i >= 0; i-- {
		doc, err = didpatch.Apply(doc, chain[i])
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// getOperation lazily reconstructs the full WriteOperation for hash h from
// its compact OperationInfo, fetching the backing batch file from CAS.
func (p *Projection) getOperation(ctx context.Context, h operation.Hash) (*operation.WriteOperation, error) {
	p.mu.RLock()
	info, ok := p.opInfoByHash[h]
	p.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	buf, err := p.cas.Read(ctx, info.BatchFileHash)
	if err != nil {
		return nil, nil //nolint:nilerr // CAS read failures surface as "unresolvable", matching spec §7
	}
	bf, err := batch.FromBuffer(buf)
	if err != nil {
		return nil, nil //nolint:nilerr // malformed batch file surfaces as "unresolvable", matching spec §7
	}
	raw, err := bf.GetOperationBuffer(int(info.Timestamp.OperationIndex))
	if err != nil {
		return nil, nil //nolint:nilerr // out-of-range surfaces as "unresolvable", matching spec §7
	}

	op, err := operation.Decode(raw)
	if err != nil {
		return nil, nil //nolint:nilerr // malformed operation surfaces as "unresolvable", matching spec §7
	}
	op.BlockNumber = info.Timestamp.BlockNumber
	op.TransactionNumber = info.Timestamp.TransactionNumber
	op.OperationIndex = info.Timestamp.OperationIndex
	op.BatchFileHash = info.BatchFileHash
	return op, nil
}
