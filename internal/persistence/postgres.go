package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"TokenLedger/internal/ledger"
)

const defaultQueryTimeout = 2 * time.Second

// PostgresStore keeps ledger entries in token_state.entries. Each journal is
// written as one multi-row upsert inside one transaction.
type PostgresStore struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		timeout: defaultQueryTimeout,
	}
}

func (s *PostgresStore) Get(key []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM token_state.entries WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *PostgresStore) Commit(entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query, args := buildUpsert(entries)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert entries: %w", err)
	}

	return tx.Commit()
}

func buildUpsert(entries []ledger.Entry) (string, []interface{}) {
	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*2)
	for i, e := range entries {
		base := i * 2
		values = append(values, fmt.Sprintf("($%d, $%d)", base+1, base+2))
		args = append(args, e.Key, e.Value)
	}

	query := `INSERT INTO token_state.entries (key, value) VALUES ` +
		strings.Join(values, ", ") +
		` ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	return query, args
}

// Scan visits entries under prefix in key order.
func (s *PostgresStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM token_state.entries WHERE substring(key from 1 for $1) = $2 ORDER BY key`,
		len(prefix), prefix,
	)
	if err != nil {
		return fmt.Errorf("scan %x: %w", prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}
