package projection

import (
	"context"
	"testing"

	"github.com/sidetree-node/anchornode/internal/batch"
	"github.com/sidetree-node/anchornode/internal/cas"
	"github.com/sidetree-node/anchornode/internal/operation"
	"github.com/sidetree-node/anchornode/internal/protocol"
)

const sha256Code = 0x12

// anchorOp writes op as a single-operation batch file to store and applies
// the resulting resolved operation to proj, returning its hash.
func anchorOp(t *testing.T, ctx context.Context, store cas.Store, proj *Projection, op *operation.WriteOperation, blockNumber, txNumber uint64) operation.Hash {
	t.Helper()

	raw, err := operation.Encode(op)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	bf := batch.FromOperations([][]byte{raw})
	batchFileHash, err := store.Write(ctx, bf.ToBuffer())
	if err != nil {
		t.Fatalf("store.Write: %v", err)
	}

	resolved := *op
	resolved.RawBuffer = raw
	resolved.BlockNumber = blockNumber
	resolved.TransactionNumber = txNumber
	resolved.OperationIndex = 0
	resolved.BatchFileHash = batchFileHash

	h, err := proj.Apply(&resolved)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return h
}

func newTestProjection() (*Projection, cas.Store) {
	store := cas.NewMemoryStore()
	proj := New(store, protocol.Default(), "example")
	return proj, store
}

func TestApplyDuplicateEarliestWins(t *testing.T) {
	ctx := context.Background()
	proj, store := newTestProjection()

	create := &operation.WriteOperation{Type: operation.TypeCreate, EncodedPayload: []byte(`{"v":1}`)}

	h1 := anchorOp(t, ctx, store, proj, create, 1, 5)
	if h1 == "" {
		t.Fatal("first apply should not be discarded")
	}

	h2 := anchorOp(t, ctx, store, proj, create, 1, 7)
	if h2 != "" {
		t.Fatalf("duplicate at a later timestamp should be discarded, got hash %q", h2)
	}

	proj.mu.RLock()
	info := proj.opInfoByHash[h1]
	proj.mu.RUnlock()
	if info.Timestamp.TransactionNumber != 5 {
		t.Fatalf("stored timestamp.TransactionNumber = %d, want 5", info.Timestamp.TransactionNumber)
	}
}

func TestForkResolutionFirstWriterWins(t *testing.T) {
	ctx := context.Background()
	proj, store := newTestProjection()

	create := &operation.WriteOperation{Type: operation.TypeCreate, EncodedPayload: []byte(`{"v":1}`)}
	c := anchorOp(t, ctx, store, proj, create, 1, 1)

	// U1@(tx=10,idx=0) and U2@(tx=10,idx=1) both claim C as predecessor,
	// anchored together in the same batch, per spec.md scenario 5.
	u1 := &operation.WriteOperation{Type: operation.TypeUpdate, EncodedPayload: []byte(`[{"op":"add","path":"/a","value":1}]`), PreviousOperationHash: c}
	u2 := &operation.WriteOperation{Type: operation.TypeUpdate, EncodedPayload: []byte(`[{"op":"add","path":"/b","value":2}]`), PreviousOperationHash: c}

	rawU1, err := operation.Encode(u1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	rawU2, err := operation.Encode(u2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	bf := batch.FromOperations([][]byte{rawU1, rawU2})
	batchFileHash, err := store.Write(ctx, bf.ToBuffer())
	if err != nil {
		t.Fatalf("store.Write: %v", err)
	}

	resolvedU1 := *u1
	resolvedU1.RawBuffer = rawU1
	resolvedU1.BlockNumber = 2
	resolvedU1.TransactionNumber = 10
	resolvedU1.OperationIndex = 0
	resolvedU1.BatchFileHash = batchFileHash
	u1Hash, err := proj.Apply(&resolvedU1)
	if err != nil {
		t.Fatalf("Apply(U1): %v", err)
	}

	resolvedU2 := *u2
	resolvedU2.RawBuffer = rawU2
	resolvedU2.BlockNumber = 2
	resolvedU2.TransactionNumber = 10
	resolvedU2.OperationIndex = 1
	resolvedU2.BatchFileHash = batchFileHash
	if _, err := proj.Apply(&resolvedU2); err != nil {
		t.Fatalf("Apply(U2): %v", err)
	}

	if got := proj.Next(c); got != u1Hash {
		t.Fatalf("Next(C) = %q, want %q (first writer wins)", got, u1Hash)
	}
	if got := proj.Last(c); got != u1Hash {
		t.Fatalf("Last(C) = %q, want %q", got, u1Hash)
	}
}

func TestFirstLastRoundTripFromGenesis(t *testing.T) {
	ctx := context.Background()
	proj, store := newTestProjection()

	create := &operation.WriteOperation{Type: operation.TypeCreate, EncodedPayload: []byte(`{"v":1}`)}
	c := anchorOp(t, ctx, store, proj, create, 1, 1)

	u1 := &operation.WriteOperation{Type: operation.TypeUpdate, EncodedPayload: []byte(`[]`), PreviousOperationHash: c}
	anchorOp(t, ctx, store, proj, u1, 2, 10)

	last := proj.Last(c)
	first, err := proj.First(ctx, last)
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if first != c {
		t.Fatalf("First(Last(C)) = %q, want %q", first, c)
	}
}

func TestResolveEqualsLookupOfLast(t *testing.T) {
	ctx := context.Background()
	proj, store := newTestProjection()

	create := &operation.WriteOperation{Type: operation.TypeCreate, EncodedPayload: []byte(`{"v":1}`)}
	c := anchorOp(t, ctx, store, proj, create, 1, 1)

	u1 := &operation.WriteOperation{Type: operation.TypeUpdate, EncodedPayload: []byte(`[{"op":"add","path":"/a","value":true}]`), PreviousOperationHash: c}
	anchorOp(t, ctx, store, proj, u1, 2, 10)

	viaResolve, err := proj.Resolve(ctx, c)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	viaLookup, err := proj.Lookup(ctx, proj.Last(c))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if viaResolve == nil || viaLookup == nil {
		t.Fatal("expected both documents to resolve")
	}
	if string(viaResolve.Body) != string(viaLookup.Body) {
		t.Fatalf("Resolve body %s != Lookup(Last) body %s", viaResolve.Body, viaLookup.Body)
	}
}

func TestRollbackPrunesAtOrAfterTransaction(t *testing.T) {
	ctx := context.Background()
	proj, store := newTestProjection()

	create := &operation.WriteOperation{Type: operation.TypeCreate, EncodedPayload: []byte(`{"v":1}`)}
	c := anchorOp(t, ctx, store, proj, create, 1, 1)

	u1 := &operation.WriteOperation{Type: operation.TypeUpdate, EncodedPayload: []byte(`[]`), PreviousOperationHash: c}
	u1Hash := anchorOp(t, ctx, store, proj, u1, 2, 10)

	u3 := &operation.WriteOperation{Type: operation.TypeUpdate, EncodedPayload: []byte(`[]`), PreviousOperationHash: u1Hash}
	u3Hash := anchorOp(t, ctx, store, proj, u3, 3, 12)

	proj.Rollback(11)

	proj.mu.RLock()
	_, u3Present := proj.opInfoByHash[u3Hash]
	_, cPresent := proj.opInfoByHash[c]
	_, u1Present := proj.opInfoByHash[u1Hash]
	proj.mu.RUnlock()

	if u3Present {
		t.Fatal("operation at tx=12 should have been rolled back")
	}
	if !cPresent || !u1Present {
		t.Fatal("operations before the rollback point must survive")
	}
	if got := proj.Next(u1Hash); got != "" {
		t.Fatalf("Next(U1) = %q after rollback, want empty", got)
	}
}

func TestApplyRejectsMissingBatchFileHash(t *testing.T) {
	proj, _ := newTestProjection()
	op := &operation.WriteOperation{Type: operation.TypeCreate, EncodedPayload: []byte(`{}`)}
	if _, err := proj.Apply(op); err == nil {
		t.Fatal("expected ErrInvalidOperation for missing BatchFileHash")
	}
}

func TestLastProcessedTransactionTracksHighWaterMark(t *testing.T) {
	ctx := context.Background()
	proj, store := newTestProjection()

	create := &operation.WriteOperation{Type: operation.TypeCreate, EncodedPayload: []byte(`{"v":1}`)}
	anchorOp(t, ctx, store, proj, create, 1, 5)

	if got := proj.LastProcessedTransaction(); got != 5 {
		t.Fatalf("LastProcessedTransaction = %d, want 5", got)
	}
}
