package event

import (
	"TokenLedger/internal/ledger"

	"github.com/holiman/uint256"
)

// Transfer records value moving between accounts. From is the null account
// for a mint and To is the null account for a burn.
type Transfer struct {
	From   ledger.Address
	To     ledger.Address
	Amount *uint256.Int
}

func (t *Transfer) EventType() EventType {
	return EventTypeTransfer
}

func (t *Transfer) IsMint() bool {
	return ledger.IsNull(t.From)
}

func (t *Transfer) IsBurn() bool {
	return ledger.IsNull(t.To)
}

// Approval records a spending quota being set.
type Approval struct {
	Owner   ledger.Address
	Spender ledger.Address
	Amount  *uint256.Int
}

func (a *Approval) EventType() EventType {
	return EventTypeApproval
}
