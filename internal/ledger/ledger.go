package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Ledger owns account balances and the total-supply counter. It is a thin
// view over a KV (normally a Journal); every method either stages its full
// write or returns an error having staged nothing.
type Ledger struct {
	kv KV
}

func NewLedger(kv KV) *Ledger {
	return &Ledger{kv: kv}
}

// BalanceOf returns the balance of account, zero if it has no entry.
func (l *Ledger) BalanceOf(account Address) (*uint256.Int, error) {
	return readAmount(l.kv, BalanceKey(account))
}

// TotalSupply returns the supply counter.
func (l *Ledger) TotalSupply() (*uint256.Int, error) {
	return readAmount(l.kv, SupplyKey())
}

// Credit adds amount to account.
func (l *Ledger) Credit(account Address, amount *uint256.Int) error {
	key := BalanceKey(account)
	balance, err := readAmount(l.kv, key)
	if err != nil {
		return err
	}

	sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("credit %s: %w", FormatAddress(account), ErrOverflow)
	}

	l.kv.Put(key, EncodeAmount(sum))
	return nil
}

// Debit subtracts amount from account, failing if the balance is short.
func (l *Ledger) Debit(account Address, amount *uint256.Int) error {
	key := BalanceKey(account)
	balance, err := readAmount(l.kv, key)
	if err != nil {
		return err
	}

	if balance.Lt(amount) {
		return &InsufficientBalanceError{
			Account: account,
			Balance: balance,
			Needed:  amount.Clone(),
		}
	}

	l.kv.Put(key, EncodeAmount(new(uint256.Int).Sub(balance, amount)))
	return nil
}

// IncreaseSupply raises the supply counter by amount.
func (l *Ledger) IncreaseSupply(amount *uint256.Int) error {
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}

	sum, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return fmt.Errorf("increase supply: %w", ErrOverflow)
	}

	l.kv.Put(SupplyKey(), EncodeAmount(sum))
	return nil
}

// DecreaseSupply lowers the supply counter by amount. The counter can only
// fall short if balances and supply have already diverged.
func (l *Ledger) DecreaseSupply(amount *uint256.Int) error {
	supply, err := l.TotalSupply()
	if err != nil {
		return err
	}

	if supply.Lt(amount) {
		return fmt.Errorf("decrease supply %s by %s: %w",
			FormatAmount(supply), FormatAmount(amount), ErrOverflow)
	}

	l.kv.Put(SupplyKey(), EncodeAmount(new(uint256.Int).Sub(supply, amount)))
	return nil
}

func readAmount(kv KV, key []byte) (*uint256.Int, error) {
	raw, err := kv.Get(key)
	if err != nil {
		return nil, err
	}
	v, err := DecodeAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyPath(key), err)
	}
	return v, nil
}
