package core

import (
	"TokenLedger/internal/ledger"

	"github.com/holiman/uint256"
)

// CommandKind discriminates ingested commands.
type CommandKind int32

const (
	CommandUnknown CommandKind = iota
	CommandTransfer
	CommandTransferFrom
	CommandApprove
	CommandMint
	CommandBurn
)

func (k CommandKind) String() string {
	switch k {
	case CommandTransfer:
		return "transfer"
	case CommandTransferFrom:
		return "transfer_from"
	case CommandApprove:
		return "approve"
	case CommandMint:
		return "mint"
	case CommandBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// ParseCommandKind accepts the String form, and "transfer-from" as used in
// subjects and routes.
func ParseCommandKind(s string) CommandKind {
	switch s {
	case "transfer":
		return CommandTransfer
	case "transfer_from", "transfer-from":
		return CommandTransferFrom
	case "approve":
		return CommandApprove
	case "mint":
		return CommandMint
	case "burn":
		return CommandBurn
	default:
		return CommandUnknown
	}
}

// Command is an operation request carrying an explicit caller, as delivered
// by a trusted transport.
type Command interface {
	Kind() CommandKind
	IdempotencyKey() string
	Caller() ledger.Address
}

type TransferCommand struct {
	Key    string
	From   ledger.Address
	To     ledger.Address
	Amount *uint256.Int
}

func (c *TransferCommand) Kind() CommandKind      { return CommandTransfer }
func (c *TransferCommand) IdempotencyKey() string { return c.Key }
func (c *TransferCommand) Caller() ledger.Address { return c.From }

type TransferFromCommand struct {
	Key     string
	Spender ledger.Address
	Owner   ledger.Address
	To      ledger.Address
	Amount  *uint256.Int
}

func (c *TransferFromCommand) Kind() CommandKind      { return CommandTransferFrom }
func (c *TransferFromCommand) IdempotencyKey() string { return c.Key }
func (c *TransferFromCommand) Caller() ledger.Address { return c.Spender }

type ApproveCommand struct {
	Key     string
	Owner   ledger.Address
	Spender ledger.Address
	Amount  *uint256.Int
}

func (c *ApproveCommand) Kind() CommandKind      { return CommandApprove }
func (c *ApproveCommand) IdempotencyKey() string { return c.Key }
func (c *ApproveCommand) Caller() ledger.Address { return c.Owner }

type MintCommand struct {
	Key      string
	Operator ledger.Address
	To       ledger.Address
	Amount   *uint256.Int
}

func (c *MintCommand) Kind() CommandKind      { return CommandMint }
func (c *MintCommand) IdempotencyKey() string { return c.Key }
func (c *MintCommand) Caller() ledger.Address { return c.Operator }

type BurnCommand struct {
	Key      string
	Operator ledger.Address
	From     ledger.Address
	Amount   *uint256.Int
}

func (c *BurnCommand) Kind() CommandKind      { return CommandBurn }
func (c *BurnCommand) IdempotencyKey() string { return c.Key }
func (c *BurnCommand) Caller() ledger.Address { return c.Operator }
