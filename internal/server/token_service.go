package server

import (
	"context"
	"encoding/hex"

	"TokenLedger/internal/core"
	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"
	"TokenLedger/internal/observability"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// tokenService implements TokenServiceServer. Reads go through the Token
// facade; writes go through the Dispatcher so RPC and NATS commands share
// idempotency and minter checks.
type tokenService struct {
	token      *core.Token
	dispatcher *core.Dispatcher
	engine     *core.Engine
	validator  *ledger.InvariantValidator
	health     *observability.HealthChecker
	logger     zerolog.Logger
}

func (s *tokenService) Metadata(ctx context.Context, _ *MetadataRequest) (*MetadataResponse, error) {
	return &MetadataResponse{Name: s.token.Name(), Symbol: s.token.Symbol()}, nil
}

func (s *tokenService) TotalSupply(ctx context.Context, _ *TotalSupplyRequest) (*AmountResponse, error) {
	return s.amount(s.token.TotalSupply())
}

func (s *tokenService) BalanceOf(ctx context.Context, req *BalanceOfRequest) (*AmountResponse, error) {
	owner, err := ledger.ParseAddress(req.Owner)
	if err != nil {
		return nil, invalidArgument("owner", err)
	}
	return s.amount(s.token.BalanceOf(owner))
}

func (s *tokenService) Allowance(ctx context.Context, req *AllowanceRequest) (*AmountResponse, error) {
	owner, err := ledger.ParseAddress(req.Owner)
	if err != nil {
		return nil, invalidArgument("owner", err)
	}
	spender, err := ledger.ParseAddress(req.Spender)
	if err != nil {
		return nil, invalidArgument("spender", err)
	}
	return s.amount(s.token.Allowance(owner, spender))
}

func (s *tokenService) Transfer(ctx context.Context, req *TransferRequest) (*Receipt, error) {
	caller, err := CallerFromContext(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	to, err := ledger.ParseAddress(req.To)
	if err != nil {
		return nil, invalidArgument("to", err)
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, invalidArgument("amount", err)
	}
	return s.process(&core.TransferCommand{Key: req.IdempotencyKey, From: caller, To: to, Amount: amount})
}

func (s *tokenService) TransferFrom(ctx context.Context, req *TransferFromRequest) (*Receipt, error) {
	caller, err := CallerFromContext(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	owner, err := ledger.ParseAddress(req.Owner)
	if err != nil {
		return nil, invalidArgument("owner", err)
	}
	to, err := ledger.ParseAddress(req.To)
	if err != nil {
		return nil, invalidArgument("to", err)
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, invalidArgument("amount", err)
	}
	return s.process(&core.TransferFromCommand{Key: req.IdempotencyKey, Spender: caller, Owner: owner, To: to, Amount: amount})
}

func (s *tokenService) Approve(ctx context.Context, req *ApproveRequest) (*Receipt, error) {
	caller, err := CallerFromContext(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	spender, err := ledger.ParseAddress(req.Spender)
	if err != nil {
		return nil, invalidArgument("spender", err)
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, invalidArgument("amount", err)
	}
	return s.process(&core.ApproveCommand{Key: req.IdempotencyKey, Owner: caller, Spender: spender, Amount: amount})
}

func (s *tokenService) Mint(ctx context.Context, req *MintRequest) (*Receipt, error) {
	caller, err := CallerFromContext(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	to, err := ledger.ParseAddress(req.To)
	if err != nil {
		return nil, invalidArgument("to", err)
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, invalidArgument("amount", err)
	}
	return s.process(&core.MintCommand{Key: req.IdempotencyKey, Operator: caller, To: to, Amount: amount})
}

func (s *tokenService) Burn(ctx context.Context, req *BurnRequest) (*Receipt, error) {
	caller, err := CallerFromContext(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	from, err := ledger.ParseAddress(req.From)
	if err != nil {
		return nil, invalidArgument("from", err)
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		return nil, invalidArgument("amount", err)
	}
	return s.process(&core.BurnCommand{Key: req.IdempotencyKey, Operator: caller, From: from, Amount: amount})
}

func (s *tokenService) Status(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	hash := s.engine.StateHash()
	resp := &StatusResponse{
		Sequence:     s.engine.Sequence(),
		StateHash:    hex.EncodeToString(hash[:]),
		Ready:        s.health == nil || s.health.IsReady(),
		InvariantsOK: true,
	}
	if s.validator != nil {
		if err := s.engine.Verify(s.validator); err != nil {
			resp.InvariantsOK = false
			resp.InvariantError = err.Error()
		}
	}
	return resp, nil
}

func (s *tokenService) process(cmd core.Command) (*Receipt, error) {
	env, err := s.dispatcher.Process(cmd)
	if err != nil {
		return nil, s.fail(cmd.Kind().String(), err)
	}
	return s.receipt(env)
}

func (s *tokenService) receipt(env *event.Envelope) (*Receipt, error) {
	r, err := newReceipt(env)
	if err != nil {
		return nil, s.fail("receipt", err)
	}
	return r, nil
}

func (s *tokenService) amount(v *uint256.Int, err error) (*AmountResponse, error) {
	if err != nil {
		return nil, s.fail("read", err)
	}
	return &AmountResponse{Amount: ledger.FormatAmount(v)}, nil
}

func (s *tokenService) fail(op string, err error) error {
	st := toStatus(err)
	if ledger.Reason(err) == "internal" && ReasonFromStatus(st) == "" {
		s.logger.Error().Err(err).Str("op", op).Msg("request failed")
	}
	return st
}
