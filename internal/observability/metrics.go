package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for WagerLedger.
type Metrics struct {
	// --- Core Processing ---
	CoreInstructionsApplied  *prometheus.CounterVec
	CoreInstructionsRejected *prometheus.CounterVec
	CoreInstructionDuration  *prometheus.HistogramVec
	CoreSequence             prometheus.Gauge
	MarketExposure           *prometheus.GaugeVec

	// --- Latency ---
	IngestToApply   *prometheus.HistogramVec
	NATSPullLatency *prometheus.HistogramVec
	PersistBatchDur prometheus.Histogram

	// --- Channel & Backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	ProjectionDrops    *prometheus.CounterVec
	PublishDrops       prometheus.Counter

	// --- Idempotency & Ordering ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	SequenceGaps          *prometheus.CounterVec
	OutOfOrder            *prometheus.CounterVec

	// --- Persistence ---
	PersistInstructionsWritten prometheus.Counter
	PersistTransfersWritten    prometheus.Counter
	PersistBatchSize           prometheus.Histogram
	PersistErrors              *prometheus.CounterVec
	PersistRetry               prometheus.Counter
	PersistLastSequence        prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken           prometheus.Counter
	SnapshotDuration        prometheus.Histogram
	SnapshotLastSeq         prometheus.Gauge
	ReplayInstructionsTotal prometheus.Counter
	ReplayDuration          prometheus.Gauge

	// --- Projection ---
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec

	// --- Cache ---
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		// Core Processing
		CoreInstructionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_core_instructions_applied_total",
			Help: "Instructions successfully applied by core",
		}, []string{"instruction_type"}),

		CoreInstructionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_core_instructions_rejected_total",
			Help: "Instructions rejected (dedup, gap, validation)",
		}, []string{"instruction_type", "reason"}),

		CoreInstructionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wager_core_instruction_apply_duration_seconds",
			Help:    "Time to apply a single instruction in core",
			Buckets: latencyBuckets,
		}, []string{"instruction_type"}),

		CoreSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wager_core_sequence",
			Help: "Current global sequence number",
		}),

		MarketExposure: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wager_market_exposure",
			Help: "Unsettled stake total per market",
		}, []string{"market"}),

		// Latency
		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wager_ingest_to_apply_seconds",
			Help:    "NATS receive to core apply complete",
			Buckets: ingestBuckets,
		}, []string{"instruction_type"}),

		NATSPullLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wager_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: ingestBuckets,
		}, []string{"subject"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wager_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		// Channel & Backpressure
		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wager_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wager_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wager_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_projection_drops_total",
			Help: "Outputs dropped due to full projection channel",
		}, []string{"projection"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wager_publish_drops_total",
			Help: "Notices dropped due to full publish channel",
		}),

		// Idempotency & Ordering
		IdempotencyDuplicates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"instruction_type", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wager_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		SequenceGaps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_sequence_gap_total",
			Help: "Source sequence gaps",
		}, []string{"partition"}),

		OutOfOrder: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_out_of_order_total",
			Help: "Out-of-order rejections",
		}, []string{"partition"}),

		// Persistence
		PersistInstructionsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wager_persist_instructions_written_total",
			Help: "Instructions written to Postgres",
		}),

		PersistTransfersWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wager_persist_transfers_written_total",
			Help: "Transfer records written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wager_persist_batch_size",
			Help:    "Instructions per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wager_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wager_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Snapshot
		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wager_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "wager_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wager_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayInstructionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wager_replay_instructions_total",
			Help: "Instructions replayed on startup",
		}),

		ReplayDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wager_replay_duration_seconds",
			Help: "Total replay time",
		}),

		// Projection
		ProjectionUpdateDur: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wager_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"projection"}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wager_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint"}),

		// Cache
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_cache_hits_total",
			Help: "Redis cache hits",
		}, []string{"cache"}),

		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wager_cache_misses_total",
			Help: "Redis cache misses",
		}, []string{"cache"}),
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
