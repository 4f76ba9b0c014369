package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"TokenLedger/internal/event"

	"github.com/google/uuid"
)

// EventLogWriter appends notifications to token_events.events using
// multi-row INSERTs and reads back what restart needs.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in token_events.events.
type EventRow struct {
	ID             uuid.UUID
	Sequence       int64
	EventType      string
	IdempotencyKey *string
	Payload        []byte // JSON, see event.MarshalPayload
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// Checkpoint is the tail of the event log.
type Checkpoint struct {
	Sequence  uint64
	StateHash [32]byte
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// NewEventRow flattens an envelope for storage.
func NewEventRow(env *event.Envelope) (EventRow, error) {
	payload, err := event.MarshalPayload(env.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload seq=%d: %w", env.Sequence, err)
	}

	row := EventRow{
		ID:        env.ID,
		Sequence:  int64(env.Sequence),
		EventType: env.EventType.String(),
		Payload:   payload,
		StateHash: env.StateHash[:],
		PrevHash:  env.PrevHash[:],
		Timestamp: env.Timestamp,
	}
	if env.IdempotencyKey != "" {
		key := env.IdempotencyKey
		row.IdempotencyKey = &key
	}
	return row, nil
}

// WriteEventBatch inserts rows inside tx. Rows that collide with an existing
// sequence or idempotency key are skipped, so a retried batch is harmless.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*8)

	for i, r := range rows {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			r.ID, r.Sequence, r.EventType, r.IdempotencyKey,
			r.Payload, r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query := `INSERT INTO token_events.events
		(event_id, sequence, event_type, idempotency_key, payload, state_hash, prev_hash, created_at)
		VALUES ` + strings.Join(values, ", ") +
		` ON CONFLICT DO NOTHING`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastCheckpoint returns the highest persisted sequence and its hash.
// ok is false for an empty log.
func (w *EventLogWriter) LastCheckpoint(ctx context.Context) (cp Checkpoint, ok bool, err error) {
	var (
		seq  int64
		hash []byte
	)
	err = w.db.QueryRowContext(ctx,
		`SELECT sequence, state_hash FROM token_events.events ORDER BY sequence DESC LIMIT 1`,
	).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	if len(hash) != len(cp.StateHash) {
		return Checkpoint{}, false, fmt.Errorf("checkpoint seq=%d has %d-byte hash", seq, len(hash))
	}

	cp.Sequence = uint64(seq)
	copy(cp.StateHash[:], hash)
	return cp, true, nil
}

// RecentIdempotencyKeys returns up to limit keys, oldest first, for warming
// the dedup LRU.
func (w *EventLogWriter) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT idempotency_key FROM (
			SELECT idempotency_key, sequence FROM token_events.events
			WHERE idempotency_key IS NOT NULL
			ORDER BY sequence DESC LIMIT $1
		) recent ORDER BY sequence ASC`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
