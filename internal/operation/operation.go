// Package operation defines the Sidetree write-operation envelope and the
// hashing convention used to derive an OperationHash / VersionId from it.
package operation

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"
)

// Type is the Sidetree operation kind.
type Type string

const (
	TypeCreate  Type = "create"
	TypeUpdate  Type = "update"
	TypeDelete  Type = "delete"
	TypeRecover Type = "recover"
)

// Timestamp is the linear order a resolved operation occupies once the
// Rooter's anchor has been observed on the ledger. Ordering is lexicographic
// on (TransactionNumber, OperationIndex); BlockNumber is carried for context
// and for rollback.
type Timestamp struct {
	BlockNumber       uint64
	TransactionNumber uint64
	OperationIndex    uint
}

// Less reports whether t sorts strictly before other under the projection's
// ordering rule.
func (t Timestamp) Less(other Timestamp) bool {
	if t.TransactionNumber != other.TransactionNumber {
		return t.TransactionNumber < other.TransactionNumber
	}
	return t.OperationIndex < other.OperationIndex
}

// Hash is a base58-encoded multihash. It is the sole identifier used
// throughout the projection, under the alias VersionId when it denotes a
// specific DID-document revision.
type Hash = string

// VersionId is an alias of Hash, used where the hash identifies a specific
// DID-document version rather than an operation.
type VersionId = Hash

// WriteOperation is a raw client-submitted payload, plus the metadata it
// gains once resolved against the ledger.
type WriteOperation struct {
	Type                  Type
	EncodedPayload        []byte
	PreviousOperationHash VersionId // empty for Create

	// RawBuffer is the operation exactly as it was submitted and stored in
	// the batch file; hashing rules in Compute depend on it for non-Create
	// operations.
	RawBuffer []byte

	// Populated once the operation is resolved against the ledger.
	BlockNumber       uint64
	TransactionNumber uint64
	OperationIndex    uint
	BatchFileHash     string
}

// Info is the projection's compressed record of an observed operation:
// enough to fetch the full operation lazily via CAS, without keeping the
// operation body itself in memory.
type Info struct {
	BatchFileHash  string
	AnchorFileHash string // not populated by the projection's Apply; always empty
	Type           Type
	Timestamp      Timestamp
}

// Timestamp extracts the (blockNumber, transactionNumber, operationIndex)
// triple from a resolved WriteOperation.
func (op *WriteOperation) Timestamp() Timestamp {
	return Timestamp{
		BlockNumber:       op.BlockNumber,
		TransactionNumber: op.TransactionNumber,
		OperationIndex:    op.OperationIndex,
	}
}

// Compute derives the OperationHash for op using the multihash algorithm
// code selected by the Protocol Table for op's block. Create operations
// hash their encoded create payload; every other type hashes the entire
// operation byte buffer, per the Sidetree convention.
func Compute(op *WriteOperation, hashAlgorithmCode uint64) (Hash, error) {
	var toHash []byte
	if op.Type == TypeCreate {
		toHash = op.EncodedPayload
	} else {
		toHash = op.RawBuffer
	}
	return HashBytes(toHash, hashAlgorithmCode)
}

// wireOperation is the JSON wire shape of a raw, client-submitted
// operation: what travels in the batch file and what a client posts to the
// submission endpoint.
type wireOperation struct {
	Type                  Type   `json:"type"`
	EncodedPayload        []byte `json:"encodedPayload"`
	PreviousOperationHash string `json:"previousOperationHash,omitempty"`
}

// Encode serializes the client-submitted portion of op (type, payload,
// predecessor) to the raw buffer stored in the batch file.
func Encode(op *WriteOperation) ([]byte, error) {
	return json.Marshal(wireOperation{
		Type:                  op.Type,
		EncodedPayload:        op.EncodedPayload,
		PreviousOperationHash: op.PreviousOperationHash,
	})
}

// Decode parses a raw operation buffer back into a WriteOperation, leaving
// the resolved-transaction fields (BlockNumber, TransactionNumber,
// OperationIndex, BatchFileHash) for the caller to fill in.
func Decode(raw []byte) (*WriteOperation, error) {
	var w wireOperation
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("operation: decoding: %w", err)
	}
	return &WriteOperation{
		Type:                  w.Type,
		EncodedPayload:        w.EncodedPayload,
		PreviousOperationHash: w.PreviousOperationHash,
		RawBuffer:             raw,
	}, nil
}

// HashBytes multihash-encodes data with the given algorithm code and
// base58-btc encodes the result, yielding the canonical Sidetree hash
// string used for OperationHash and for Merkle tree nodes. CAS content
// addresses are CIDv1 strings computed by the cas package instead.
func HashBytes(data []byte, hashAlgorithmCode uint64) (string, error) {
	digest, err := mh.Sum(data, int(hashAlgorithmCode), -1)
	if err != nil {
		return "", err
	}
	return base58.Encode(digest), nil
}
