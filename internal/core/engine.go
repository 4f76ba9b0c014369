package core

import (
	"errors"
	"sync"
	"time"

	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"
	"TokenLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Operation labels used in logs and metrics.
const (
	OpTransfer     = "transfer"
	OpTransferFrom = "transfer_from"
	OpApprove      = "approve"
	OpMint         = "mint"
	OpBurn         = "burn"
)

var errNilAmount = errors.New("amount is required")

// Engine runs ledger operations one at a time against a store. Each
// operation stages its writes on a fresh journal; the journal is committed
// as a unit and only then is the notification emitted, still under the
// lock, so sinks observe commit order.
type Engine struct {
	mu       sync.Mutex
	store    ledger.Store
	sink     event.Sink
	hasher   *StateHasher
	sequence uint64
	clock    func() time.Time
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

type EngineOption func(*Engine)

func WithMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the envelope timestamp source.
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) { e.clock = fn }
}

// WithStartState resumes numbering and the hash chain after a restart.
func WithStartState(sequence uint64, tip [32]byte) EngineOption {
	return func(e *Engine) {
		e.sequence = sequence
		e.hasher.SetPrevHash(tip)
	}
}

// ResumeFrom continues the chain from tip, typically ledger.ReadChainTip.
func ResumeFrom(tip ledger.ChainTip) EngineOption {
	return WithStartState(tip.Sequence, tip.StateHash)
}

func NewEngine(store ledger.Store, sink event.Sink, opts ...EngineOption) *Engine {
	if sink == nil {
		sink = event.Discard
	}
	e := &Engine{
		store:  store,
		sink:   sink,
		hasher: NewStateHasher(),
		clock:  time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// mutation stages an operation's writes and returns the notification
// describing it. It must not touch anything but the ledger views it is given.
type mutation func(l *ledger.Ledger, a *ledger.AllowanceRegistry) (event.Event, error)

// apply runs fn on a fresh journal and, if it succeeds, commits and announces it.
// A non-empty key is recorded in the same journal, so a key is consumed
// exactly when its operation's state change is. The chain tip is committed
// with every operation.
func (e *Engine) apply(op, key string, fn mutation) (*event.Envelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()

	j := ledger.NewJournal(e.store)
	if key != "" {
		seen, err := j.Get(ledger.CommandKey(key))
		if err != nil {
			e.reject(op, err)
			return nil, err
		}
		if seen != nil {
			return nil, ErrDuplicateCommand
		}
	}

	evt, err := fn(ledger.NewLedger(j), ledger.NewAllowanceRegistry(j))
	if err != nil {
		e.reject(op, err)
		return nil, err
	}

	hashStart := time.Now()
	seq := e.sequence + 1
	prev := e.hasher.GetPrevHash()
	hash := e.hasher.ComputeHash(seq, computeStateDigest(j.Entries()))
	if e.metrics != nil {
		e.metrics.StateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	if key != "" {
		j.Put(ledger.CommandKey(key), ledger.EncodeCommandMarker(seq))
	}
	j.Put(ledger.ChainTipKey(), ledger.EncodeChainTip(ledger.ChainTip{Sequence: seq, StateHash: hash}))

	commitStart := time.Now()
	if err := j.Commit(); err != nil {
		e.hasher.SetPrevHash(prev)
		e.reject(op, err)
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.StoreCommitDur.Observe(time.Since(commitStart).Seconds())
	}
	e.sequence = seq

	env := &event.Envelope{
		ID:             uuid.New(),
		Sequence:       e.sequence,
		IdempotencyKey: key,
		EventType:      evt.EventType(),
		Timestamp:      e.clock(),
		StateHash:      hash,
		PrevHash:       prev,
		Payload:        evt,
	}
	e.sink.Emit(env)

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.metrics.Sequence.Set(float64(e.sequence))
		e.metrics.EventsEmitted.WithLabelValues(env.EventType.String()).Inc()
	}

	return env, nil
}

func (e *Engine) reject(op string, err error) {
	reason := ledger.Reason(err)
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
	}
	if reason == "internal" {
		e.logger.Error().Err(err).Str("op", op).Msg("operation failed")
		return
	}
	e.logger.Debug().Err(err).Str("op", op).Str("reason", reason).Msg("operation rejected")
}

// read runs fn against committed state.
func (e *Engine) read(fn func(l *ledger.Ledger, a *ledger.AllowanceRegistry) (*uint256.Int, error)) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	j := ledger.NewJournal(e.store)
	return fn(ledger.NewLedger(j), ledger.NewAllowanceRegistry(j))
}

// Verify runs the invariant checks while no operation is in flight, so
// stores without snapshot reads see a consistent state.
func (e *Engine) Verify(v *ledger.InvariantValidator) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return v.ValidateAll()
}

// Sequence returns the last committed sequence number.
func (e *Engine) Sequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// StateHash returns the current chain tip.
func (e *Engine) StateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}
