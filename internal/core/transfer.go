package core

import (
	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"

	"github.com/holiman/uint256"
)

// TransferEngine moves value between accounts, directly or through an
// allowance, and manages approvals. It also serves the read operations.
type TransferEngine struct {
	engine *Engine
}

func NewTransferEngine(engine *Engine) *TransferEngine {
	return &TransferEngine{engine: engine}
}

func (t *TransferEngine) TotalSupply() (*uint256.Int, error) {
	return t.engine.read(func(l *ledger.Ledger, _ *ledger.AllowanceRegistry) (*uint256.Int, error) {
		return l.TotalSupply()
	})
}

func (t *TransferEngine) BalanceOf(owner ledger.Address) (*uint256.Int, error) {
	return t.engine.read(func(l *ledger.Ledger, _ *ledger.AllowanceRegistry) (*uint256.Int, error) {
		return l.BalanceOf(owner)
	})
}

func (t *TransferEngine) Allowance(owner, spender ledger.Address) (*uint256.Int, error) {
	return t.engine.read(func(_ *ledger.Ledger, a *ledger.AllowanceRegistry) (*uint256.Int, error) {
		return a.Allowance(owner, spender)
	})
}

// Transfer moves amount from caller to to.
func (t *TransferEngine) Transfer(caller, to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	return t.transfer("", caller, to, amount)
}

// TransferFrom moves amount from owner to to on behalf of caller. Unless
// caller is the owner, the (owner, caller) allowance is reduced by exactly
// amount.
func (t *TransferEngine) TransferFrom(caller, owner, to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	return t.transferFrom("", caller, owner, to, amount)
}

// Approve sets the quota caller grants spender, replacing any previous value.
func (t *TransferEngine) Approve(caller, spender ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	return t.approve("", caller, spender, amount)
}

func (t *TransferEngine) transfer(key string, caller, to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	if amount == nil {
		return nil, errNilAmount
	}
	return t.engine.apply(OpTransfer, key, func(l *ledger.Ledger, _ *ledger.AllowanceRegistry) (event.Event, error) {
		if ledger.IsNull(caller) {
			return nil, ledger.ErrInvalidSender
		}
		if ledger.IsNull(to) {
			return nil, ledger.ErrInvalidReceiver
		}
		if err := move(l, caller, to, amount); err != nil {
			return nil, err
		}
		return &event.Transfer{From: caller, To: to, Amount: amount.Clone()}, nil
	})
}

func (t *TransferEngine) transferFrom(key string, caller, owner, to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	if amount == nil {
		return nil, errNilAmount
	}
	return t.engine.apply(OpTransferFrom, key, func(l *ledger.Ledger, a *ledger.AllowanceRegistry) (event.Event, error) {
		if ledger.IsNull(owner) {
			return nil, ledger.ErrInvalidSender
		}
		if ledger.IsNull(to) {
			return nil, ledger.ErrInvalidReceiver
		}
		if caller != owner {
			if err := a.Spend(owner, caller, amount); err != nil {
				return nil, err
			}
		}
		if err := move(l, owner, to, amount); err != nil {
			return nil, err
		}
		return &event.Transfer{From: owner, To: to, Amount: amount.Clone()}, nil
	})
}

func (t *TransferEngine) approve(key string, caller, spender ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	if amount == nil {
		return nil, errNilAmount
	}
	return t.engine.apply(OpApprove, key, func(_ *ledger.Ledger, a *ledger.AllowanceRegistry) (event.Event, error) {
		if err := a.Approve(caller, spender, amount); err != nil {
			return nil, err
		}
		return &event.Approval{Owner: caller, Spender: spender, Amount: amount.Clone()}, nil
	})
}

// move debits from and credits to. A self-transfer nets to zero but still
// requires the balance to cover amount.
func move(l *ledger.Ledger, from, to ledger.Address, amount *uint256.Int) error {
	if err := l.Debit(from, amount); err != nil {
		return err
	}
	return l.Credit(to, amount)
}
