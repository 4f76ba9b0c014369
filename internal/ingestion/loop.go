package ingestion

import (
	"context"
	"errors"
	"time"

	"TokenLedger/internal/core"
	"TokenLedger/internal/event"
	"TokenLedger/internal/ledger"
	"TokenLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Processor applies a decoded command. *core.Dispatcher implements it.
type Processor interface {
	Process(cmd core.Command) (*event.Envelope, error)
}

// CommandLoop drains raw commands, decodes them and feeds the processor.
//
// Ack policy:
//   - malformed or unknown-kind messages are acked and dropped
//   - domain rejections and duplicates are acked; retrying cannot succeed
//   - internal faults (storage) are nak'd for redelivery; the idempotency
//     key is not consumed on failure so a retry is safe
type CommandLoop struct {
	rawChan   <-chan RawCommand
	processor Processor
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewCommandLoop(rawChan <-chan RawCommand, processor Processor, metrics *observability.Metrics, logger zerolog.Logger) *CommandLoop {
	return &CommandLoop{
		rawChan:   rawChan,
		processor: processor,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled or the input channel is closed.
func (l *CommandLoop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-l.rawChan:
			if !ok {
				return nil
			}
			l.handle(raw)
		}
	}
}

func (l *CommandLoop) handle(raw RawCommand) {
	kind := KindFromSubject(raw.Subject)
	if l.metrics != nil {
		l.metrics.CommandsReceived.WithLabelValues(kind.String()).Inc()
	}

	if kind == core.CommandUnknown {
		l.drop(raw, errors.New("unknown command subject"))
		return
	}

	cmd, err := ParseCommand(kind, raw.Data)
	if err != nil {
		l.drop(raw, err)
		return
	}

	env, err := l.processor.Process(cmd)
	if l.metrics != nil && !raw.ReceivedAt.IsZero() {
		l.metrics.IngestToApply.WithLabelValues(kind.String()).Observe(time.Since(raw.ReceivedAt).Seconds())
	}

	switch {
	case err == nil:
		l.logger.Debug().
			Str("kind", kind.String()).
			Uint64("sequence", env.Sequence).
			Str("idempotency_key", cmd.IdempotencyKey()).
			Msg("command applied")
		raw.Ack()

	case errors.Is(err, core.ErrDuplicateCommand):
		l.logger.Debug().Str("idempotency_key", cmd.IdempotencyKey()).Msg("duplicate command skipped")
		raw.Ack()

	case ledger.IsRejection(err) || errors.Is(err, core.ErrNotMinter):
		l.logger.Info().Err(err).
			Str("kind", kind.String()).
			Str("idempotency_key", cmd.IdempotencyKey()).
			Msg("command rejected")
		raw.Ack()

	default:
		l.logger.Error().Err(err).
			Str("kind", kind.String()).
			Str("idempotency_key", cmd.IdempotencyKey()).
			Msg("command failed, requesting redelivery")
		raw.Nak()
	}
}

func (l *CommandLoop) drop(raw RawCommand, err error) {
	l.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed command")
	if l.metrics != nil {
		l.metrics.CommandsMalformed.Inc()
	}
	raw.Ack()
}
