package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/sidetree-node/anchornode/internal/anchor"
	"github.com/sidetree-node/anchornode/internal/cas"
	"github.com/sidetree-node/anchornode/internal/ledger"
	"github.com/sidetree-node/anchornode/internal/operation"
	"github.com/sidetree-node/anchornode/internal/projection"
	"github.com/sidetree-node/anchornode/internal/protocol"
	"github.com/sidetree-node/anchornode/internal/rooter"
)

func TestSubmitOperationEnqueuesAndRootingResolves(t *testing.T) {
	store := cas.NewMemoryStore()
	led := ledger.NewMemoryLedger()
	table := protocol.Default()
	logger := logrus.New()
	logger.SetOutput(bytes.NewBuffer(nil))

	r := rooter.New(store, led, table, logger)
	proj := projection.New(store, table, "example")
	srv := NewServer(r, proj, logger)

	raw, err := operation.Encode(&operation.WriteOperation{Type: operation.TypeCreate, EncodedPayload: []byte(`{"v":1}`)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/operations", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST /operations status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	if r.GetOperationQueueLength() != 1 {
		t.Fatalf("queue length = %d, want 1", r.GetOperationQueueLength())
	}

	r.RootOperations(context.Background())

	// Apply directly, mirroring what the observer would do once it sees the
	// anchored transaction; exercises the resolve path end-to-end.
	op, err := operation.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	op.BlockNumber, op.TransactionNumber, op.OperationIndex = 1, 1, 0
	txns, err := led.TransactionsSince(context.Background(), 0)
	if err != nil || len(txns) != 1 {
		t.Fatalf("expected one anchored transaction, got %d (err=%v)", len(txns), err)
	}
	op.BatchFileHash = anchorBatchHash(t, store, txns[0].AnchorFileHash)
	if _, err := proj.Apply(op); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/identifiers/"+mustHash(t, op), nil)
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /identifiers status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func mustHash(t *testing.T, op *operation.WriteOperation) string {
	t.Helper()
	h, err := operation.Compute(op, 0x12)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return h
}

func anchorBatchHash(t *testing.T, store *cas.MemoryStore, anchorFileHash string) string {
	t.Helper()
	buf, err := store.Read(context.Background(), anchorFileHash)
	if err != nil {
		t.Fatalf("reading anchor file: %v", err)
	}
	af, err := anchor.FromBuffer(buf)
	if err != nil {
		t.Fatalf("decoding anchor file: %v", err)
	}
	return af.BatchFileHash
}
