// Package didpatch applies Create/Update/Recover/Delete operations to a DID
// document. This is the JSON-patch document operator spec.md treats as an
// external collaborator ("assumed present and correct"); it is implemented
// here, minimally, so the Projection has something concrete to call.
package didpatch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/sidetree-node/anchornode/internal/operation"
)

// Document is a resolved DID document: its method-qualified id plus an
// arbitrary JSON document body.
type Document struct {
	ID   string
	Body json.RawMessage
}

// FromCreate builds the genesis document for a Create operation: the DID is
// "<didMethodName>:<versionId>" and the body is the operation's encoded
// create payload, taken as-is.
func FromCreate(op *operation.WriteOperation, versionID, didMethodName string) (*Document, error) {
	if !json.Valid(op.EncodedPayload) {
		return nil, fmt.Errorf("didpatch: create payload is not valid JSON")
	}
	return &Document{
		ID:   didMethodName + ":" + versionID,
		Body: append(json.RawMessage(nil), op.EncodedPayload...),
	}, nil
}

// Apply produces the next document version by applying op's encoded
// payload — a JSON Patch (RFC 6902) document — to prev's body. Delete and
// Recover operations are represented the same way: the payload is whatever
// patch the client submitted to reach the next state.
func Apply(prev *Document, op *operation.WriteOperation) (*Document, error) {
	patch, err := jsonpatch.DecodePatch(op.EncodedPayload)
	if err != nil {
		return nil, fmt.Errorf("didpatch: decoding patch: %w", err)
	}
	next, err := patch.Apply(prev.Body)
	if err != nil {
		return nil, fmt.Errorf("didpatch: applying patch: %w", err)
	}
	return &Document{ID: prev.ID, Body: next}, nil
}
