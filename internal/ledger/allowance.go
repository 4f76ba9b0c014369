package ledger

import (
	"github.com/holiman/uint256"
)

// AllowanceRegistry owns the (owner, spender) spending quotas.
type AllowanceRegistry struct {
	kv KV
}

func NewAllowanceRegistry(kv KV) *AllowanceRegistry {
	return &AllowanceRegistry{kv: kv}
}

// Allowance returns the quota spender may draw from owner, zero if unset.
func (r *AllowanceRegistry) Allowance(owner, spender Address) (*uint256.Int, error) {
	return readAmount(r.kv, AllowanceKey(owner, spender))
}

// Approve replaces the quota for the pair. It does not add to the previous
// value: a spender watching the pending replacement can still draw the old
// quota first. Callers wanting delta semantics read, then approve.
func (r *AllowanceRegistry) Approve(owner, spender Address, amount *uint256.Int) error {
	if IsNull(owner) {
		return ErrInvalidApprover
	}
	if IsNull(spender) {
		return ErrInvalidSpender
	}

	r.kv.Put(AllowanceKey(owner, spender), EncodeAmount(amount))
	return nil
}

// Spend consumes exactly amount from the pair's quota.
func (r *AllowanceRegistry) Spend(owner, spender Address, amount *uint256.Int) error {
	key := AllowanceKey(owner, spender)
	allowance, err := readAmount(r.kv, key)
	if err != nil {
		return err
	}

	if allowance.Lt(amount) {
		return &InsufficientAllowanceError{
			Owner:     owner,
			Spender:   spender,
			Allowance: allowance,
			Needed:    amount.Clone(),
		}
	}

	r.kv.Put(key, EncodeAmount(new(uint256.Int).Sub(allowance, amount)))
	return nil
}
