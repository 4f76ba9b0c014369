package persistence

import (
	"bytes"
	"sort"
	"strings"
	"sync"

	"TokenLedger/internal/ledger"
)

// MemoryStore keeps ledger entries in a map. It is the default substrate
// for tests and single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
	}
}

func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bytes.Clone(s.entries[string(key)]), nil
}

// Commit applies every entry under one write lock.
func (s *MemoryStore) Commit(entries []ledger.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[string(e.Key)] = bytes.Clone(e.Value)
	}
	return nil
}

// Scan visits entries under prefix in key order. It iterates over a copy,
// so fn may read from the store.
func (s *MemoryStore) Scan(prefix []byte, fn func(key, value []byte) error) error {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	values := make(map[string][]byte)
	for k, v := range s.entries {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
			values[k] = bytes.Clone(v)
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
