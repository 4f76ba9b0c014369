package core

import (
	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"

	"github.com/holiman/uint256"
)

// SupplyController creates and destroys units. It does not check who is
// asking: callers gate access before reaching it.
type SupplyController struct {
	engine *Engine
}

func NewSupplyController(engine *Engine) *SupplyController {
	return &SupplyController{engine: engine}
}

// Mint credits to with amount and raises the supply. The notification is a
// Transfer from the null account.
func (s *SupplyController) Mint(to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	return s.mint("", to, amount)
}

// Burn debits from by amount and lowers the supply. The notification is a
// Transfer to the null account.
func (s *SupplyController) Burn(from ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	return s.burn("", from, amount)
}

func (s *SupplyController) mint(key string, to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	if amount == nil {
		return nil, errNilAmount
	}
	return s.engine.apply(OpMint, key, func(l *ledger.Ledger, _ *ledger.AllowanceRegistry) (event.Event, error) {
		if ledger.IsNull(to) {
			return nil, ledger.ErrInvalidReceiver
		}
		if err := l.IncreaseSupply(amount); err != nil {
			return nil, err
		}
		if err := l.Credit(to, amount); err != nil {
			return nil, err
		}
		return &event.Transfer{From: ledger.NullAddress, To: to, Amount: amount.Clone()}, nil
	})
}

func (s *SupplyController) burn(key string, from ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	if amount == nil {
		return nil, errNilAmount
	}
	return s.engine.apply(OpBurn, key, func(l *ledger.Ledger, _ *ledger.AllowanceRegistry) (event.Event, error) {
		if ledger.IsNull(from) {
			return nil, ledger.ErrInvalidSender
		}
		if err := l.Debit(from, amount); err != nil {
			return nil, err
		}
		if err := l.DecreaseSupply(amount); err != nil {
			return nil, err
		}
		return &event.Transfer{From: from, To: ledger.NullAddress, Amount: amount.Clone()}, nil
	})
}
