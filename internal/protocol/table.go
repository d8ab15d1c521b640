// Package protocol maps a ledger block number to the Sidetree protocol
// parameters in effect at that block.
package protocol

import "sort"

// Params are the protocol parameters in effect for a contiguous range of
// blocks starting at the entry's StartingBlock.
type Params struct {
	StartingBlock        uint64
	MaxOperationsPerBatch int
	HashAlgorithmCode     uint64
}

// Table is a sorted, immutable list of protocol versions keyed by the block
// number at which each version takes effect.
type Table struct {
	versions []Params
}

// multihash code 0x12 is SHA2-256, per the multiformats table.
const sha256Code = 0x12

// Default returns the built-in single-version table used when no
// configuration overrides it: unlimited protocol history, SHA-256 hashing,
// and a batch cap generous enough for a single-node demo.
func Default() *Table {
	return New([]Params{
		{StartingBlock: 0, MaxOperationsPerBatch: 100, HashAlgorithmCode: sha256Code},
	})
}

// New builds a Table from an unordered slice of Params, sorting by
// StartingBlock ascending. It panics if versions is empty or contains a
// duplicate StartingBlock, since both indicate a misconfigured deployment
// caught earliest at startup.
func New(versions []Params) *Table {
	if len(versions) == 0 {
		panic("protocol: table must have at least one version")
	}
	sorted := make([]Params, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartingBlock < sorted[j].StartingBlock })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].StartingBlock == sorted[i-1].StartingBlock {
			panic("protocol: duplicate StartingBlock in table")
		}
	}
	return &Table{versions: sorted}
}

// Get returns the parameters of the version with the greatest StartingBlock
// less than or equal to blockNumber. If blockNumber precedes every
// version's StartingBlock, the earliest version is returned, so Get always
// returns some version.
func (t *Table) Get(blockNumber uint64) Params {
	// binary search for the last entry with StartingBlock <= blockNumber
	idx := sort.Search(len(t.versions), func(i int) bool {
		return t.versions[i].StartingBlock > blockNumber
	})
	if idx == 0 {
		return t.versions[0]
	}
	return t.versions[idx-1]
}
