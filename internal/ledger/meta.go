package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Bookkeeping entries committed alongside every operation.
const (
	commandPrefix byte = 'k'
	chainTipByte  byte = 'q'

	// CommandMarkerSize is the value width of a command marker: the
	// sequence number that consumed the key.
	CommandMarkerSize = 8

	// ChainTipSize is sequence (8) followed by the state hash (32).
	ChainTipSize = 8 + 32
)

// ChainTip is the last committed sequence number and state hash.
type ChainTip struct {
	Sequence  uint64
	StateHash [32]byte
}

// CommandKey is the storage key marking an idempotency key as consumed.
// The key is hashed so arbitrary client strings map to a fixed width.
func CommandKey(idempotencyKey string) []byte {
	sum := sha256.Sum256([]byte(idempotencyKey))
	key := make([]byte, 0, 1+len(sum))
	key = append(key, commandPrefix)
	return append(key, sum[:]...)
}

func isCommandKey(key []byte) bool {
	return len(key) == 1+sha256.Size && key[0] == commandPrefix
}

// ChainTipKey is the storage key of the persisted chain tip.
func ChainTipKey() []byte {
	return []byte{chainTipByte}
}

// EncodeCommandMarker records the sequence that consumed a command key.
func EncodeCommandMarker(sequence uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, sequence)
}

func EncodeChainTip(tip ChainTip) []byte {
	b := make([]byte, 0, ChainTipSize)
	b = binary.BigEndian.AppendUint64(b, tip.Sequence)
	return append(b, tip.StateHash[:]...)
}

func DecodeChainTip(b []byte) (ChainTip, error) {
	if len(b) != ChainTipSize {
		return ChainTip{}, fmt.Errorf("chain tip has %d bytes, want %d", len(b), ChainTipSize)
	}
	var tip ChainTip
	tip.Sequence = binary.BigEndian.Uint64(b[:8])
	copy(tip.StateHash[:], b[8:])
	return tip, nil
}

// ReadChainTip loads the persisted tip. ok is false on a store that has
// never committed an operation.
func ReadChainTip(store Store) (tip ChainTip, ok bool, err error) {
	b, err := store.Get(ChainTipKey())
	if err != nil {
		return ChainTip{}, false, fmt.Errorf("read chain tip: %w", err)
	}
	if b == nil {
		return ChainTip{}, false, nil
	}
	tip, err = DecodeChainTip(b)
	if err != nil {
		return ChainTip{}, false, err
	}
	return tip, true, nil
}

// entrySize is the value width a journal entry under key must have, or 0
// for keys the ledger does not own.
func entrySize(key []byte) int {
	switch {
	case isCommandKey(key):
		return CommandMarkerSize
	case len(key) == 1 && key[0] == chainTipByte:
		return ChainTipSize
	}
	if _, ok := ParseBalanceKey(key); ok {
		return AmountSize
	}
	if _, _, ok := ParseAllowanceKey(key); ok {
		return AmountSize
	}
	if len(key) == 1 && key[0] == supplyPrefix {
		return AmountSize
	}
	return 0
}
