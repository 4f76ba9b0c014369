package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Null-identifier and range violations. They carry no fields.
var (
	ErrInvalidReceiver = errors.New("invalid receiver: null account")
	ErrInvalidSender   = errors.New("invalid sender: null account")
	ErrInvalidApprover = errors.New("invalid approver: null account")
	ErrInvalidSpender  = errors.New("invalid spender: null account")
	ErrOverflow        = errors.New("amount out of range")
)

// InsufficientBalanceError is returned when a debit exceeds the balance.
type InsufficientBalanceError struct {
	Account Address
	Balance *uint256.Int
	Needed  *uint256.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: account=%s balance=%s needed=%s",
		FormatAddress(e.Account), FormatAmount(e.Balance), FormatAmount(e.Needed))
}

// InsufficientAllowanceError is returned when a delegated spend exceeds the quota.
type InsufficientAllowanceError struct {
	Owner     Address
	Spender   Address
	Allowance *uint256.Int
	Needed    *uint256.Int
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("insufficient allowance: owner=%s spender=%s allowance=%s needed=%s",
		FormatAddress(e.Owner), FormatAddress(e.Spender), FormatAmount(e.Allowance), FormatAmount(e.Needed))
}

// Reason maps an error to a stable label for metrics and transport status.
// Anything that is not a ledger rule violation is reported as "internal".
func Reason(err error) string {
	var (
		balErr   *InsufficientBalanceError
		allowErr *InsufficientAllowanceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &balErr):
		return "insufficient_balance"
	case errors.As(err, &allowErr):
		return "insufficient_allowance"
	case errors.Is(err, ErrInvalidReceiver):
		return "invalid_receiver"
	case errors.Is(err, ErrInvalidSender):
		return "invalid_sender"
	case errors.Is(err, ErrInvalidApprover):
		return "invalid_approver"
	case errors.Is(err, ErrInvalidSpender):
		return "invalid_spender"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	default:
		return "internal"
	}
}

// IsRejection reports whether err is a ledger rule violation rather than a
// storage or wiring fault.
func IsRejection(err error) bool {
	r := Reason(err)
	return r != "" && r != "internal"
}
