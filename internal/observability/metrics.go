package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for TokenLedger.
type Metrics struct {
	// --- Core ---
	OpsApplied     *prometheus.CounterVec
	OpsRejected    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	StoreCommitDur prometheus.Histogram
	StateHashDur   prometheus.Histogram
	Sequence       prometheus.Gauge
	EventsEmitted  *prometheus.CounterVec

	// --- Channels ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	PublishDrops       prometheus.Counter
	PublishErrors      prometheus.Counter

	// --- Ingestion & idempotency ---
	CommandsReceived      *prometheus.CounterVec
	CommandsMalformed     prometheus.Counter
	IngestToApply         *prometheus.HistogramVec
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram
	DedupTier2Errors      prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- RPC ---
	RPCRequests *prometheus.CounterVec
	RPCDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	storeBuckets := []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	return &Metrics{
		OpsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "token_core_ops_applied_total",
			Help: "Operations committed by the engine",
		}, []string{"op"}),

		OpsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "token_core_ops_rejected_total",
			Help: "Operations aborted, by reason",
		}, []string{"op", "reason"}),

		OpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "token_core_op_duration_seconds",
			Help:    "Time to apply one operation, lock wait excluded",
			Buckets: storeBuckets,
		}, []string{"op"}),

		StoreCommitDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "token_core_store_commit_duration_seconds",
			Help:    "Time for the store to apply one journal",
			Buckets: storeBuckets,
		}),

		StateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "token_core_state_hash_duration_seconds",
			Help:    "Time to compute the chained state hash",
			Buckets: latencyBuckets,
		}),

		Sequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "token_core_sequence",
			Help: "Last committed sequence number",
		}),

		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "token_core_events_emitted_total",
			Help: "Notifications handed to sinks",
		}, []string{"event_type"}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "token_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "token_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "token_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "token_publish_drops_total",
			Help: "Notifications dropped due to full publish channel",
		}),

		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "token_publish_errors_total",
			Help: "Notifications that failed to publish to NATS",
		}),

		CommandsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "token_ingest_commands_total",
			Help: "Commands received from NATS",
		}, []string{"kind"}),

		CommandsMalformed: f.NewCounter(prometheus.CounterOpts{
			Name: "token_ingest_commands_malformed_total",
			Help: "Commands acked and dropped because they failed to parse",
		}),

		IngestToApply: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "token_ingest_to_apply_seconds",
			Help:    "NATS receive to engine commit",
			Buckets: ingestBuckets,
		}, []string{"kind"}),

		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "token_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"kind", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "token_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "token_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "token_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: storeBuckets,
		}),

		DedupTier2Errors: f.NewCounter(prometheus.CounterOpts{
			Name: "token_dedup_tier2_errors_total",
			Help: "Postgres dedup lookups that failed and were treated as misses",
		}),

		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "token_persist_events_written_total",
			Help: "Notifications written to the event log",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "token_persist_batch_size",
			Help:    "Notifications per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "token_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: storeBuckets,
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "token_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "token_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "token_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		RPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "token_rpc_requests_total",
			Help: "Service requests by method and status code",
		}, []string{"method", "code"}),

		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "token_rpc_duration_seconds",
			Help:    "Service request latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"method"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
