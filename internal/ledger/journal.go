package ledger

import (
	"bytes"
	"fmt"
)

// Store is the persistent substrate under the ledger. Get returns nil for an
// absent key. Commit applies every entry or none of them.
type Store interface {
	Get(key []byte) ([]byte, error)
	Commit(entries []Entry) error
}

// Scanner is implemented by stores that can enumerate entries under a prefix.
type Scanner interface {
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

// ScanStore is a Store that can also be scanned.
type ScanStore interface {
	Store
	Scanner
}

// KV is the read/write surface Ledger and AllowanceRegistry mutate.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte)
}

// Entry is a single staged write.
type Entry struct {
	Key   []byte
	Value []byte
}

// Journal stages the writes of one operation on top of a Store. Reads see
// staged values first. Nothing reaches the store until the caller commits
// Entries(); dropping the journal discards the operation.
type Journal struct {
	store  Store
	staged map[string][]byte
	order  []string
}

func NewJournal(store Store) *Journal {
	return &Journal{
		store:  store,
		staged: make(map[string][]byte),
	}
}

// Get returns the staged value for key, or the committed one.
func (j *Journal) Get(key []byte) ([]byte, error) {
	if v, ok := j.staged[string(key)]; ok {
		return bytes.Clone(v), nil
	}
	v, err := j.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("store get %s: %w", KeyPath(key), err)
	}
	return v, nil
}

// Put stages value under key. A later Put to the same key replaces it.
func (j *Journal) Put(key, value []byte) {
	k := string(key)
	if _, ok := j.staged[k]; !ok {
		j.order = append(j.order, k)
	}
	j.staged[k] = bytes.Clone(value)
}

// Len returns the number of distinct staged keys.
func (j *Journal) Len() int {
	return len(j.order)
}

// Entries returns the staged writes in first-write order.
func (j *Journal) Entries() []Entry {
	entries := make([]Entry, 0, len(j.order))
	for _, k := range j.order {
		entries = append(entries, Entry{
			Key:   []byte(k),
			Value: bytes.Clone(j.staged[k]),
		})
	}
	return entries
}

// Validate ensures every staged write is a well-formed ledger entry.
func (j *Journal) Validate() error {
	for _, k := range j.order {
		key := []byte(k)
		want := entrySize(key)
		if want == 0 {
			return fmt.Errorf("journal has unknown key %x", key)
		}
		if len(j.staged[k]) != want {
			return fmt.Errorf("journal entry %s has %d-byte value, want %d", KeyPath(key), len(j.staged[k]), want)
		}
	}
	return nil
}

// Commit validates the journal and hands its entries to the store.
func (j *Journal) Commit() error {
	if len(j.order) == 0 {
		return nil
	}
	if err := j.Validate(); err != nil {
		return err
	}
	if err := j.store.Commit(j.Entries()); err != nil {
		return fmt.Errorf("store commit: %w", err)
	}
	return nil
}
