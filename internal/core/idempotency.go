package core

import (
	"container/list"
	"time"

	"TokenLedger/internal/observability"

	"github.com/rs/zerolog"
)

// Duplicate tiers reported in metrics.
const (
	tierLRU      = "lru"
	tierPostgres = "postgres"
	tierStore    = "store"
)

// IdempotencyChecker implements two-tier deduplication of command keys in
// front of the engine's committed markers.
// Not thread-safe; the Dispatcher serializes access.
type IdempotencyChecker struct {
	// Tier 1: in-memory LRU
	lru *IdempotencyLRU

	// Tier 2: the persisted event log, optional
	dbChecker DBIdempotencyChecker

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// DBIdempotencyChecker reports whether an operation carrying key has already
// been committed.
type DBIdempotencyChecker interface {
	IsDuplicate(idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics, logger zerolog.Logger) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
		logger:    logger,
	}
}

// IsDuplicate checks both tiers. kind only labels metrics.
func (ic *IdempotencyChecker) IsDuplicate(kind, key string) bool {
	if ic.lru.Contains(key) {
		ic.recordDuplicate(kind, tierLRU)
		return true
	}

	if ic.dbChecker == nil {
		return false
	}

	start := time.Now()
	isDup, err := ic.dbChecker.IsDuplicate(key)
	if ic.metrics != nil {
		ic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		// A tier-2 outage must not stall ingestion; treat as a miss.
		ic.logger.Warn().Err(err).Str("idempotency_key", key).Msg("tier-2 dedup lookup failed")
		if ic.metrics != nil {
			ic.metrics.DedupTier2Errors.Inc()
		}
		return false
	}

	if isDup {
		ic.recordDuplicate(kind, tierPostgres)
		ic.add(key)
		return true
	}
	return false
}

// MarkProcessed records key after a successful commit.
func (ic *IdempotencyChecker) MarkProcessed(key string) {
	ic.add(key)
}

// Warm preloads recently committed keys, oldest first.
func (ic *IdempotencyChecker) Warm(keys []string) {
	ic.lru.WarmFromKeys(keys)
	ic.syncLRUMetrics(0)
}

func (ic *IdempotencyChecker) add(key string) {
	before := ic.lru.Evictions()
	ic.lru.Add(key)
	ic.syncLRUMetrics(ic.lru.Evictions() - before)
}

func (ic *IdempotencyChecker) syncLRUMetrics(evicted int64) {
	if ic.metrics == nil {
		return
	}
	ic.metrics.DedupLRUSize.Set(float64(ic.lru.Size()))
	if evicted > 0 {
		ic.metrics.DedupLRUEvictions.Add(float64(evicted))
	}
}

func (ic *IdempotencyChecker) recordDuplicate(kind, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(kind, tier).Inc()
	}
}

// --- LRU ---

// IdempotencyLRU is a bounded set of keys with least-recently-used eviction.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	if capacity < 1 {
		capacity = 1
	}
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Contains checks membership and promotes a hit.
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
	}
	return exists
}

// Add inserts key, or promotes it if present.
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	lru.cache[key] = lru.lruList.PushFront(key)
	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem == nil {
		return
	}
	lru.lruList.Remove(elem)
	delete(lru.cache, elem.Value.(string))
	lru.evictions++
}

// WarmFromKeys loads keys without promoting existing entries.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		if _, exists := lru.cache[key]; exists {
			continue
		}
		lru.cache[key] = lru.lruList.PushFront(key)
		if lru.lruList.Len() > lru.capacity {
			lru.evictOldest()
		}
	}
}

func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}
