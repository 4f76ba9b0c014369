package ingestion

import (
	"context"
	"fmt"

	"TokenLedger/internal/event"
	"TokenLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// EventSubjectPrefix is prepended to EventType.Subject().
const EventSubjectPrefix = "token.events."

// JetStreamPublisher is the subset of jetstream.JetStream the outbound
// publisher needs.
type JetStreamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes committed notifications to NATS for downstream
// consumers. It is fed by a non-blocking event.ChannelSink; a full channel
// drops the notification (counted in PublishDrops) rather than stalling the
// engine. The PostgreSQL event log remains the durable record.
type OutboundPublisher struct {
	js        JetStreamPublisher
	inputChan <-chan *event.Envelope
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewOutboundPublisher(js JetStreamPublisher, inputChan <-chan *event.Envelope, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// EventSubject returns token.events.{transfer|approval}.
func EventSubject(et event.EventType) string {
	return EventSubjectPrefix + et.Subject()
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, env); err != nil {
				// Non-fatal: consumers can read the event log directly.
				op.logger.Warn().Err(err).Uint64("sequence", env.Sequence).Msg("outbound publish failed")
				if op.metrics != nil {
					op.metrics.PublishErrors.Inc()
				}
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env *event.Envelope) error {
	data, err := event.MarshalEnvelope(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	// The envelope ID doubles as the JetStream message ID so a republish
	// inside the stream's duplicate window is discarded.
	_, err = op.js.Publish(ctx, EventSubject(env.EventType), data, jetstream.WithMsgID(env.ID.String()))
	return err
}

// DropCounter returns an onDrop callback for event.NewChannelSink that
// counts dropped notifications.
func DropCounter(metrics *observability.Metrics, logger zerolog.Logger) func(*event.Envelope) {
	return func(env *event.Envelope) {
		if metrics != nil {
			metrics.PublishDrops.Inc()
		}
		logger.Warn().Uint64("sequence", env.Sequence).Msg("publish channel full, dropping notification")
	}
}
