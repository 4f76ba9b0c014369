package event

import (
	"sync"

	"TokenLedger/internal/ledger"

	"github.com/rs/zerolog"
)

// Sink receives notifications in commit order. Emit is called while the
// engine still holds its operation lock, so a sink must not call back into
// the engine and should not block for long.
type Sink interface {
	Emit(env *Envelope)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(env *Envelope)

func (f SinkFunc) Emit(env *Envelope) { f(env) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(*Envelope) {})

type fanout []Sink

func (f fanout) Emit(env *Envelope) {
	for _, s := range f {
		s.Emit(env)
	}
}

// Fanout delivers each notification to every sink, in order. Nil sinks are
// skipped.
func Fanout(sinks ...Sink) Sink {
	out := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	envs []*Envelope
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(env *Envelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

// Envelopes returns a copy of everything recorded so far.
func (r *Recorder) Envelopes() []*Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Envelope(nil), r.envs...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

// Transfers returns the recorded Transfer payloads.
func (r *Recorder) Transfers() []*Transfer {
	var out []*Transfer
	for _, env := range r.Envelopes() {
		if t, ok := env.Payload.(*Transfer); ok {
			out = append(out, t)
		}
	}
	return out
}

// Approvals returns the recorded Approval payloads.
func (r *Recorder) Approvals() []*Approval {
	var out []*Approval
	for _, env := range r.Envelopes() {
		if a, ok := env.Payload.(*Approval); ok {
			out = append(out, a)
		}
	}
	return out
}

// LogSink writes every notification at debug level.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(env *Envelope) {
	ev := s.logger.Debug().
		Uint64("sequence", env.Sequence).
		Str("event_type", env.EventType.String()).
		Hex("state_hash", env.StateHash[:8])
	if env.IdempotencyKey != "" {
		ev = ev.Str("idempotency_key", env.IdempotencyKey)
	}

	switch p := env.Payload.(type) {
	case *Transfer:
		ev = ev.Str("from", ledger.FormatAddress(p.From)).
			Str("to", ledger.FormatAddress(p.To)).
			Str("amount", ledger.FormatAmount(p.Amount))
	case *Approval:
		ev = ev.Str("owner", ledger.FormatAddress(p.Owner)).
			Str("spender", ledger.FormatAddress(p.Spender)).
			Str("amount", ledger.FormatAmount(p.Amount))
	}
	ev.Msg("notification")
}

// ChannelSink hands notifications to a consumer goroutine. When blocking is
// false a full channel drops the notification and calls onDrop.
type ChannelSink struct {
	ch       chan<- *Envelope
	blocking bool
	onDrop   func(env *Envelope)
}

func NewChannelSink(ch chan<- *Envelope, blocking bool, onDrop func(env *Envelope)) *ChannelSink {
	return &ChannelSink{ch: ch, blocking: blocking, onDrop: onDrop}
}

func (s *ChannelSink) Emit(env *Envelope) {
	if s.blocking {
		s.ch <- env
		return
	}
	select {
	case s.ch <- env:
	default:
		if s.onDrop != nil {
			s.onDrop(env)
		}
	}
}
