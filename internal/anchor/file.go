// Package anchor implements the anchor file: the small structured artifact
// that commits a batch file's CAS hash and its Merkle root.
package anchor

import "encoding/json"

// File is serialized with a fixed field order and no optional fields, so
// that two anchor files built from the same batch hash and root are
// byte-for-byte identical and therefore CAS-address identically.
type File struct {
	BatchFileHash string `json:"batch_file_hash"`
	MerkleRoot    string `json:"merkle_root"`
}

// ToBuffer canonically serializes f. encoding/json marshals struct fields in
// declaration order and never reorders map-less structs, so this is
// deterministic for a fixed File value.
func (f *File) ToBuffer() ([]byte, error) {
	return json.Marshal(f)
}

// FromBuffer decodes a previously-serialized anchor file.
func FromBuffer(buf []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(buf, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
