package core

import (
	"errors"
	"fmt"
	"sync"

	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"
)

var (
	// ErrDuplicateCommand means the idempotency key was already committed;
	// the command was skipped and state is unchanged.
	ErrDuplicateCommand = errors.New("duplicate command")

	// ErrNotMinter is returned when a mint or burn comes from a caller
	// outside the configured minter set.
	ErrNotMinter = errors.New("caller is not an authorized minter")
)

// MinterSet is the allow-list for supply changes.
type MinterSet map[ledger.Address]struct{}

func NewMinterSet(minters ...ledger.Address) MinterSet {
	s := make(MinterSet, len(minters))
	for _, m := range minters {
		s[m] = struct{}{}
	}
	return s
}

// Allows reports whether caller may mint or burn.
func (s MinterSet) Allows(caller ledger.Address) bool {
	_, ok := s[caller]
	return ok
}

// Authorize returns ErrNotMinter unless caller is in the set.
func (s MinterSet) Authorize(caller ledger.Address) error {
	if !s.Allows(caller) {
		return fmt.Errorf("%w: %s", ErrNotMinter, ledger.FormatAddress(caller))
	}
	return nil
}

// Dispatcher applies ingested commands. Commands carrying an idempotency key
// are applied at most once. The LRU and event log answer the common case;
// the authoritative record is the marker the engine commits with the
// operation itself. A failed command does not consume its key.
type Dispatcher struct {
	mu          sync.Mutex
	transfers   *TransferEngine
	supply      *SupplyController
	idempotency *IdempotencyChecker
	minters     MinterSet
}

func NewDispatcher(transfers *TransferEngine, supply *SupplyController, idempotency *IdempotencyChecker, minters MinterSet) *Dispatcher {
	return &Dispatcher{
		transfers:   transfers,
		supply:      supply,
		idempotency: idempotency,
		minters:     minters,
	}
}

// Process applies cmd and returns the committed notification.
func (d *Dispatcher) Process(cmd Command) (*event.Envelope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	kind := cmd.Kind().String()
	key := cmd.IdempotencyKey()

	if key != "" && d.idempotency != nil && d.idempotency.IsDuplicate(kind, key) {
		return nil, ErrDuplicateCommand
	}

	env, err := d.dispatch(cmd, key)
	if errors.Is(err, ErrDuplicateCommand) && d.idempotency != nil {
		d.idempotency.recordDuplicate(kind, tierStore)
		d.idempotency.MarkProcessed(key)
	}
	if err != nil {
		return nil, err
	}

	if key != "" && d.idempotency != nil {
		d.idempotency.MarkProcessed(key)
	}
	return env, nil
}

func (d *Dispatcher) dispatch(cmd Command, key string) (*event.Envelope, error) {
	switch c := cmd.(type) {
	case *TransferCommand:
		return d.transfers.transfer(key, c.From, c.To, c.Amount)
	case *TransferFromCommand:
		return d.transfers.transferFrom(key, c.Spender, c.Owner, c.To, c.Amount)
	case *ApproveCommand:
		return d.transfers.approve(key, c.Owner, c.Spender, c.Amount)
	case *MintCommand:
		if err := d.minters.Authorize(c.Operator); err != nil {
			return nil, err
		}
		return d.supply.mint(key, c.To, c.Amount)
	case *BurnCommand:
		if err := d.minters.Authorize(c.Operator); err != nil {
			return nil, err
		}
		return d.supply.burn(key, c.From, c.Amount)
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}
