package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// InvariantValidator recomputes ledger invariants from committed state.
type InvariantValidator struct {
	store ScanStore
}

func NewInvariantValidator(store ScanStore) *InvariantValidator {
	return &InvariantValidator{
		store: store,
	}
}

// SumBalances adds up every balance entry.
func (v *InvariantValidator) SumBalances() (*uint256.Int, error) {
	total := new(uint256.Int)

	err := v.store.Scan(BalancePrefix(), func(key, value []byte) error {
		account, ok := ParseBalanceKey(key)
		if !ok {
			return fmt.Errorf("malformed balance key %x", key)
		}
		balance, err := DecodeAmount(value)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", FormatAddress(account), err)
		}
		if IsNull(account) && !balance.IsZero() {
			return fmt.Errorf("null account holds balance %s", FormatAmount(balance))
		}
		if _, overflow := total.AddOverflow(total, balance); overflow {
			return fmt.Errorf("sum of balances: %w", ErrOverflow)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return total, nil
}

// ValidateConservation verifies totalSupply == sum(balances).
func (v *InvariantValidator) ValidateConservation() error {
	sum, err := v.SumBalances()
	if err != nil {
		return err
	}

	raw, err := v.store.Get(SupplyKey())
	if err != nil {
		return fmt.Errorf("read supply: %w", err)
	}
	supply, err := DecodeAmount(raw)
	if err != nil {
		return fmt.Errorf("decode supply: %w", err)
	}

	if !supply.Eq(sum) {
		return fmt.Errorf("total supply %s does not match sum of balances %s",
			FormatAmount(supply), FormatAmount(sum))
	}

	return nil
}

// ValidateAllowances verifies no quota is held by or granted to the null account.
func (v *InvariantValidator) ValidateAllowances() error {
	return v.store.Scan(AllowancePrefix(), func(key, value []byte) error {
		owner, spender, ok := ParseAllowanceKey(key)
		if !ok {
			return fmt.Errorf("malformed allowance key %x", key)
		}
		amount, err := DecodeAmount(value)
		if err != nil {
			return fmt.Errorf("allowance %s: %w", KeyPath(key), err)
		}
		if amount.IsZero() {
			return nil
		}
		if IsNull(owner) || IsNull(spender) {
			return fmt.Errorf("allowance %s involves the null account", KeyPath(key))
		}
		return nil
	})
}

// ValidateAll runs every check.
func (v *InvariantValidator) ValidateAll() error {
	if err := v.ValidateConservation(); err != nil {
		return err
	}
	return v.ValidateAllowances()
}
