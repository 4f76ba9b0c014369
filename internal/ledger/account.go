package ledger

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// Address is the 20-byte account identifier used as a mapping key.
type Address = util.Uint160

// NullAddress is the reserved all-zero identifier. It stands for "no account"
// in mint and burn notifications and never holds or receives funds.
var NullAddress Address

// Storage key prefixes. Every entry the ledger writes lives under one of them.
const (
	balancePrefix   byte = 'b'
	allowancePrefix byte = 'a'
	supplyPrefix    byte = 's'
)

// IsNull reports whether a is the reserved null identifier.
func IsNull(a Address) bool {
	return a == NullAddress
}

// ParseAddress accepts either a 40-hex big-endian form (optionally 0x-prefixed)
// or a base58 Neo address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	if h, ok := strings.CutPrefix(s, "0x"); ok || len(s) == 2*util.Uint160Size {
		a, err := util.Uint160DecodeStringBE(h)
		if err != nil {
			return Address{}, fmt.Errorf("parse hex address %q: %w", s, err)
		}
		return a, nil
	}

	a, err := address.StringToUint160(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FormatAddress returns the canonical 0x-prefixed big-endian hex form.
func FormatAddress(a Address) string {
	return "0x" + a.StringBE()
}

// BalanceKey is the storage key of an account balance.
func BalanceKey(account Address) []byte {
	key := make([]byte, 0, 1+util.Uint160Size)
	key = append(key, balancePrefix)
	return append(key, account.BytesBE()...)
}

// AllowanceKey is the storage key of the (owner, spender) quota.
func AllowanceKey(owner, spender Address) []byte {
	key := make([]byte, 0, 1+2*util.Uint160Size)
	key = append(key, allowancePrefix)
	key = append(key, owner.BytesBE()...)
	return append(key, spender.BytesBE()...)
}

// SupplyKey is the storage key of the total-supply counter.
func SupplyKey() []byte {
	return []byte{supplyPrefix}
}

// BalancePrefix is the scan prefix covering every balance entry.
func BalancePrefix() []byte {
	return []byte{balancePrefix}
}

// AllowancePrefix is the scan prefix covering every allowance entry.
func AllowancePrefix() []byte {
	return []byte{allowancePrefix}
}

// ParseBalanceKey extracts the account from a balance key.
func ParseBalanceKey(key []byte) (Address, bool) {
	if len(key) != 1+util.Uint160Size || key[0] != balancePrefix {
		return Address{}, false
	}
	a, err := util.Uint160DecodeBytesBE(key[1:])
	if err != nil {
		return Address{}, false
	}
	return a, true
}

// ParseAllowanceKey extracts owner and spender from an allowance key.
func ParseAllowanceKey(key []byte) (owner, spender Address, ok bool) {
	if len(key) != 1+2*util.Uint160Size || key[0] != allowancePrefix {
		return Address{}, Address{}, false
	}
	var err error
	if owner, err = util.Uint160DecodeBytesBE(key[1 : 1+util.Uint160Size]); err != nil {
		return Address{}, Address{}, false
	}
	if spender, err = util.Uint160DecodeBytesBE(key[1+util.Uint160Size:]); err != nil {
		return Address{}, Address{}, false
	}
	return owner, spender, true
}

// KeyPath returns a readable form of a storage key for logs.
func KeyPath(key []byte) string {
	if a, ok := ParseBalanceKey(key); ok {
		return "balance:" + FormatAddress(a)
	}
	if o, s, ok := ParseAllowanceKey(key); ok {
		return fmt.Sprintf("allowance:%s:%s", FormatAddress(o), FormatAddress(s))
	}
	if len(key) == 1 && key[0] == supplyPrefix {
		return "supply"
	}
	if isCommandKey(key) {
		return fmt.Sprintf("command:%x", key[1:9])
	}
	if len(key) == 1 && key[0] == chainTipByte {
		return "chain_tip"
	}
	return fmt.Sprintf("unknown:%x", key)
}
