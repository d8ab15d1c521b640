// Package merkle builds a deterministic Merkle tree over an ordered,
// non-empty sequence of operation payloads, using the hash algorithm
// selected by the Protocol Table.
package merkle

import (
	"bytes"
	"errors"

	"github.com/sidetree-node/anchornode/internal/operation"
)

// ErrNoLeaves is returned when an empty payload sequence reaches the
// commitment builder. The Rooter must guard against this before calling in.
var ErrNoLeaves = errors.New("merkle: no leaves")

// Tree holds every level of a built Merkle tree, leaves first and the
// single-node root last.
type Tree struct {
	levels [][][]byte
}

// Build hashes each payload into a leaf with the given multihash algorithm
// code, then combines pairs of nodes bottom-up. When a level has an odd
// number of nodes, the last node is duplicated before pairing (standard
// Bitcoin-style doubling), matching the teacher's BuildMerkleTree
// convention generalized to a pluggable hash algorithm.
func Build(leaves [][]byte, hashAlgorithmCode uint64) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	level := make([][]byte, len(leaves))
	for i, l := range leaves {
		h, err := operation.HashBytes(l, hashAlgorithmCode)
		if err != nil {
			return nil, err
		}
		level[i] = []byte(h)
	}

	tree := [][][]byte{level}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			pair := append(append([]byte{}, level[i]...), level[i+1]...)
			h, err := operation.HashBytes(pair, hashAlgorithmCode)
			if err != nil {
				return nil, err
			}
			next[i/2] = []byte(h)
		}
		tree = append(tree, next)
		level = next
	}

	return &Tree{levels: tree}, nil
}

// Root returns the single root hash of the tree, as the same base58
// multihash string used for OperationHash.
func (t *Tree) Root() string {
	top := t.levels[len(t.levels)-1]
	return string(top[0])
}

// Proof returns the sibling hashes (leaf level upward) needed to verify the
// leaf at index against the tree's root.
func (t *Tree) Proof(index int) ([][]byte, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, errors.New("merkle: index out of range")
	}
	proof := make([][]byte, 0, len(t.levels)-1)
	idx := index
	for i := 0; i < len(t.levels)-1; i++ {
		level := t.levels[i]
		switch {
		case idx%2 == 0 && idx+1 < len(level):
			proof = append(proof, level[idx+1])
		case idx%2 == 0:
			// idx is the odd-count level's last node: Build pairs it with
			// itself (Bitcoin-style duplication) rather than storing the
			// padded level, so the sibling here is the node itself.
			proof = append(proof, level[idx])
		default:
			proof = append(proof, level[idx-1])
		}
		idx /= 2
	}
	return proof, nil
}

// VerifyPath checks whether proof reconstructs root for leaf at index.
func VerifyPath(root string, leaf []byte, proof [][]byte, index int, hashAlgorithmCode uint64) (bool, error) {
	h, err := operation.HashBytes(leaf, hashAlgorithmCode)
	if err != nil {
		return false, err
	}
	hash := []byte(h)
	idx := index
	for _, p := range proof {
		var pair []byte
		if idx%2 == 0 {
			pair = append(append([]byte{}, hash...), p...)
		} else {
			pair = append(append([]byte{}, p...), hash...)
		}
		next, err := operation.HashBytes(pair, hashAlgorithmCode)
		if err != nil {
			return false, err
		}
		hash = []byte(next)
		idx /= 2
	}
	return bytes.Equal(hash, []byte(root)), nil
}
