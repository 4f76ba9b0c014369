package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"TokenLedger/internal/ledger"
)

const GenesisHashSeed = "TokenLedger:genesis:v1"

// StateHasher maintains the chained state hash.
type StateHasher struct {
	prevHash [32]byte
}

// NewStateHasher initializes with the genesis hash.
func NewStateHasher() *StateHasher {
	return &StateHasher{
		prevHash: GenesisHash(),
	}
}

// GenesisHash is the chain tip before the first operation.
func GenesisHash() [32]byte {
	return sha256.Sum256([]byte(GenesisHashSeed))
}

// ComputeHash calculates hash[N] = SHA-256(hash[N-1] || sequence || digest)
// and advances the chain tip.
func (h *StateHasher) ComputeHash(sequence uint64, stateDigest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], sequence)
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))

	h.prevHash = hash

	return hash
}

// GetPrevHash returns the current chain tip.
func (h *StateHasher) GetPrevHash() [32]byte {
	return h.prevHash
}

// SetPrevHash resumes the chain from a persisted tip.
func (h *StateHasher) SetPrevHash(hash [32]byte) {
	h.prevHash = hash
}

// computeStateDigest serializes the written entries in key order:
// len(key) || key || value for each.
func computeStateDigest(entries []ledger.Entry) []byte {
	sorted := make([]ledger.Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})

	digest := make([]byte, 0, len(sorted)*(1+1+2*20+ledger.AmountSize))
	for _, e := range sorted {
		digest = append(digest, byte(len(e.Key)))
		digest = append(digest, e.Key...)
		digest = append(digest, e.Value...)
	}
	return digest
}
