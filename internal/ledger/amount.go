package ledger

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// AmountSize is the width of an encoded amount in storage.
const AmountSize = 32

// EncodeAmount returns the fixed-width big-endian storage form of v.
func EncodeAmount(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

// DecodeAmount reverses EncodeAmount. An empty value is zero.
func DecodeAmount(b []byte) (*uint256.Int, error) {
	if len(b) == 0 {
		return new(uint256.Int), nil
	}
	if len(b) != AmountSize {
		return nil, fmt.Errorf("amount must be %d bytes, got %d", AmountSize, len(b))
	}
	return new(uint256.Int).SetBytes32(b), nil
}

// ParseAmount parses a base-10 amount.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

// FormatAmount returns the base-10 form of v.
func FormatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
