package rooter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/sidetree-node/anchornode/internal/batch"
	"github.com/sidetree-node/anchornode/internal/cas"
	"github.com/sidetree-node/anchornode/internal/ledger"
	"github.com/sidetree-node/anchornode/internal/protocol"
)

func newTestRooter(maxOpsPerBatch int) (*Rooter, cas.Store, *ledger.MemoryLedger) {
	store := cas.NewMemoryStore()
	led := ledger.NewMemoryLedger()
	table := protocol.New([]protocol.Params{
		{StartingBlock: 0, MaxOperationsPerBatch: maxOpsPerBatch, HashAlgorithmCode: 0x12},
	})
	logger := logrus.New()
	logger.SetOutput(discard{})
	return New(store, led, table, logger), store, led
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestRootOperationsEmptyQueueIsNoOp(t *testing.T) {
	r, _, led := newTestRooter(100)
	r.RootOperations(context.Background())

	b, _ := led.GetLastBlock(context.Background())
	if b.BlockNumber != 0 {
		t.Fatalf("expected no ledger write, got block %d", b.BlockNumber)
	}
	if r.processing.Load() {
		t.Fatal("processing flag must be cleared after an empty tick")
	}
}

func TestRootOperationsUnderCapAnchorsEverythingAndEmptiesQueue(t *testing.T) {
	r, store, led := newTestRooter(100)
	r.Add([]byte("a"))
	r.Add([]byte("b"))
	r.Add([]byte("c"))

	r.RootOperations(context.Background())

	if r.GetOperationQueueLength() != 0 {
		t.Fatalf("queue length = %d, want 0", r.GetOperationQueueLength())
	}

	txns, err := led.TransactionsSince(context.Background(), 0)
	if err != nil || len(txns) != 1 {
		t.Fatalf("expected exactly one ledger write, got %d (err=%v)", len(txns), err)
	}

	buf, err := store.Read(context.Background(), mustBatchHashFromAnchor(t, store, txns[0].AnchorFileHash))
	if err != nil {
		t.Fatalf("reading anchored batch: %v", err)
	}
	bf, err := batch.FromBuffer(buf)
	if err != nil {
		t.Fatalf("decoding batch file: %v", err)
	}
	if bf.Len() != 3 {
		t.Fatalf("anchored batch has %d operations, want 3", bf.Len())
	}
}

func TestRootOperationsOverCapAnchorsOnlyTheCapAndPreservesFIFO(t *testing.T) {
	r, store, _ := newTestRooter(100)
	for i := 0; i < 250; i++ {
		r.Add([]byte{byte(i)})
	}

	r.RootOperations(context.Background())

	if r.GetOperationQueueLength() != 150 {
		t.Fatalf("queue length after tick = %d, want 150", r.GetOperationQueueLength())
	}
	remaining := r.peek(r.GetOperationQueueLength())
	if remaining[0][0] != 100 {
		t.Fatalf("first remaining operation = %d, want 100 (FIFO preserved)", remaining[0][0])
	}
	_ = store
}

// mustBatchHashFromAnchor decodes the anchor file at anchorFileHash and
// returns the batch file hash it references.
func mustBatchHashFromAnchor(t *testing.T, store cas.Store, anchorFileHash string) string {
	t.Helper()
	buf, err := store.Read(context.Background(), anchorFileHash)
	if err != nil {
		t.Fatalf("reading anchor file: %v", err)
	}
	var af struct {
		BatchFileHash string `json:"batch_file_hash"`
	}
	if err := json.Unmarshal(buf, &af); err != nil {
		t.Fatalf("decoding anchor file: %v", err)
	}
	return af.BatchFileHash
}
