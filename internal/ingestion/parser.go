package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"TokenLedger/internal/core"
	"TokenLedger/internal/ledger"

	"github.com/holiman/uint256"
)

// CommandSubjectPrefix is the subject namespace for inbound commands. The
// final token names the command kind, e.g. token.commands.transfer-from.
const CommandSubjectPrefix = "token.commands."

// KindFromSubject extracts the command kind from the last subject token.
func KindFromSubject(subject string) core.CommandKind {
	rest, ok := strings.CutPrefix(subject, CommandSubjectPrefix)
	if !ok {
		return core.CommandUnknown
	}
	if i := strings.LastIndexByte(rest, '.'); i >= 0 {
		rest = rest[i+1:]
	}
	return core.ParseCommandKind(rest)
}

// --- JSON wire format ---
// One shape covers every kind; the caller is set by the trusted upstream
// gateway and plays the role each kind requires (sender, spender, owner or
// operator). Amounts are base-10 strings.

type commandJSON struct {
	Caller         string `json:"caller"`
	IdempotencyKey string `json:"idempotency_key"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
	Owner          string `json:"owner,omitempty"`
	Spender        string `json:"spender,omitempty"`
	Amount         string `json:"amount"`
}

// ParseCommand decodes data as a command of the given kind.
func ParseCommand(kind core.CommandKind, data []byte) (core.Command, error) {
	var j commandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}

	caller, err := parseField("caller", j.Caller)
	if err != nil {
		return nil, err
	}
	amount, err := ledger.ParseAmount(j.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}

	switch kind {
	case core.CommandTransfer:
		to, err := parseField("to", j.To)
		if err != nil {
			return nil, err
		}
		return &core.TransferCommand{Key: j.IdempotencyKey, From: caller, To: to, Amount: amount}, nil

	case core.CommandTransferFrom:
		owner, to, err := parsePair("owner", j.Owner, "to", j.To)
		if err != nil {
			return nil, err
		}
		return &core.TransferFromCommand{Key: j.IdempotencyKey, Spender: caller, Owner: owner, To: to, Amount: amount}, nil

	case core.CommandApprove:
		spender, err := parseField("spender", j.Spender)
		if err != nil {
			return nil, err
		}
		return &core.ApproveCommand{Key: j.IdempotencyKey, Owner: caller, Spender: spender, Amount: amount}, nil

	case core.CommandMint:
		to, err := parseField("to", j.To)
		if err != nil {
			return nil, err
		}
		return &core.MintCommand{Key: j.IdempotencyKey, Operator: caller, To: to, Amount: amount}, nil

	case core.CommandBurn:
		from, err := parseField("from", j.From)
		if err != nil {
			return nil, err
		}
		return &core.BurnCommand{Key: j.IdempotencyKey, Operator: caller, From: from, Amount: amount}, nil

	default:
		return nil, fmt.Errorf("unknown command kind: %s", kind)
	}
}

// MarshalCommand is the inverse of ParseCommand, used by producers and tests.
func MarshalCommand(cmd core.Command) ([]byte, error) {
	j := commandJSON{
		Caller:         ledger.FormatAddress(cmd.Caller()),
		IdempotencyKey: cmd.IdempotencyKey(),
	}
	var amount *uint256.Int

	switch c := cmd.(type) {
	case *core.TransferCommand:
		j.To, amount = ledger.FormatAddress(c.To), c.Amount
	case *core.TransferFromCommand:
		j.Owner, j.To, amount = ledger.FormatAddress(c.Owner), ledger.FormatAddress(c.To), c.Amount
	case *core.ApproveCommand:
		j.Spender, amount = ledger.FormatAddress(c.Spender), c.Amount
	case *core.MintCommand:
		j.To, amount = ledger.FormatAddress(c.To), c.Amount
	case *core.BurnCommand:
		j.From, amount = ledger.FormatAddress(c.From), c.Amount
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}

	if amount == nil {
		return nil, fmt.Errorf("marshal %s: nil amount", cmd.Kind())
	}
	j.Amount = ledger.FormatAmount(amount)
	return json.Marshal(j)
}

// CommandSubject returns the subject a command of kind is published on.
func CommandSubject(kind core.CommandKind) string {
	if kind == core.CommandTransferFrom {
		return CommandSubjectPrefix + "transfer-from"
	}
	return CommandSubjectPrefix + kind.String()
}

func parseField(name, value string) (ledger.Address, error) {
	a, err := ledger.ParseAddress(value)
	if err != nil {
		return ledger.Address{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return a, nil
}

func parsePair(n1, v1, n2, v2 string) (ledger.Address, ledger.Address, error) {
	a, err := parseField(n1, v1)
	if err != nil {
		return ledger.Address{}, ledger.Address{}, err
	}
	b, err := parseField(n2, v2)
	if err != nil {
		return ledger.Address{}, ledger.Address{}, err
	}
	return a, b, nil
}
