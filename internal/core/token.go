package core

import (
	"context"
	"errors"
	"fmt"

	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// ErrNoCaller is returned when the identity resolver cannot name the caller.
var ErrNoCaller = errors.New("caller identity unavailable")

// IdentityFunc resolves the account on whose behalf ctx is running.
type IdentityFunc func(ctx context.Context) (ledger.Address, error)

// Params is the static token configuration.
type Params struct {
	Name   string
	Symbol string
}

// Token is the public operation surface. It owns a TransferEngine and a
// SupplyController sharing one Engine, and resolves the implicit caller
// through an IdentityFunc.
type Token struct {
	params    Params
	transfers *TransferEngine
	supply    *SupplyController
	identity  IdentityFunc
	logger    zerolog.Logger
}

func NewToken(params Params, engine *Engine, identity IdentityFunc, logger zerolog.Logger) *Token {
	return &Token{
		params:    params,
		transfers: NewTransferEngine(engine),
		supply:    NewSupplyController(engine),
		identity:  identity,
		logger:    logger,
	}
}

func (t *Token) Name() string   { return t.params.Name }
func (t *Token) Symbol() string { return t.params.Symbol }

// Transfers exposes the engine component for explicit-caller integrations.
func (t *Token) Transfers() *TransferEngine { return t.transfers }

// Supply exposes the supply component for explicit-caller integrations.
func (t *Token) Supply() *SupplyController { return t.supply }

func (t *Token) TotalSupply() (*uint256.Int, error) {
	return t.transfers.TotalSupply()
}

func (t *Token) BalanceOf(owner ledger.Address) (*uint256.Int, error) {
	return t.transfers.BalanceOf(owner)
}

func (t *Token) Allowance(owner, spender ledger.Address) (*uint256.Int, error) {
	return t.transfers.Allowance(owner, spender)
}

func (t *Token) Transfer(ctx context.Context, to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	caller, err := t.caller(ctx)
	if err != nil {
		return nil, err
	}
	return t.transfers.Transfer(caller, to, amount)
}

func (t *Token) TransferFrom(ctx context.Context, owner, to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	caller, err := t.caller(ctx)
	if err != nil {
		return nil, err
	}
	return t.transfers.TransferFrom(caller, owner, to, amount)
}

func (t *Token) Approve(ctx context.Context, spender ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	caller, err := t.caller(ctx)
	if err != nil {
		return nil, err
	}
	return t.transfers.Approve(caller, spender, amount)
}

// Mint is privileged. The caller is resolved for the audit log only.
func (t *Token) Mint(ctx context.Context, to ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	t.audit(ctx, OpMint, to, amount)
	return t.supply.Mint(to, amount)
}

// Burn is privileged. The caller is resolved for the audit log only.
func (t *Token) Burn(ctx context.Context, from ledger.Address, amount *uint256.Int) (*event.Envelope, error) {
	t.audit(ctx, OpBurn, from, amount)
	return t.supply.Burn(from, amount)
}

func (t *Token) caller(ctx context.Context) (ledger.Address, error) {
	if t.identity == nil {
		return ledger.Address{}, ErrNoCaller
	}
	caller, err := t.identity(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCaller) {
			return ledger.Address{}, err
		}
		return ledger.Address{}, fmt.Errorf("%w: %v", ErrNoCaller, err)
	}
	return caller, nil
}

func (t *Token) audit(ctx context.Context, op string, account ledger.Address, amount *uint256.Int) {
	ev := t.logger.Info().
		Str("op", op).
		Str("account", ledger.FormatAddress(account)).
		Str("amount", ledger.FormatAmount(amount))
	if caller, err := t.caller(ctx); err == nil {
		ev = ev.Str("caller", ledger.FormatAddress(caller))
	}
	ev.Msg("supply change requested")
}
