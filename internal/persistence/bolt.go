package persistence

import (
	"bytes"
	"fmt"
	"time"

	"TokenLedger/internal/ledger"

	"github.com/boltdb/bolt"
)

var stateBucket = []byte("token_state")

// BoltStore keeps ledger entries in a single bucket of a Bolt file. Each
// journal is written in one read-write transaction.
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(key []byte) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Bolt values are only valid inside the transaction.
		value = bytes.Clone(tx.Bucket(stateBucket).Get(key))
		return nil
	})
	return value, err
}

func (s *BoltStore) Commit(entries []ledger.Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(stateBucket)
		for _, e := range entries {
			if err := b.Put(e.Key, e.Value); err != nil {
				return fmt.Errorf("put %s: %w", ledger.KeyPath(e.Key), err)
			}
		}
		return nil
	})
}

// Scan visits entries under prefix in key order inside one read
// transaction. fn must not write to the store.
func (s *BoltStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(stateBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(bytes.Clone(k), bytes.Clone(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
