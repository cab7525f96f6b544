package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for StableLedger.
type Metrics struct {
	// --- Dispatch ---
	EventsApplied   *prometheus.CounterVec
	EventsDuplicate *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec
	EventDuration   *prometheus.HistogramVec
	CheckpointBlock *prometheus.GaugeVec
	PartitionHalted *prometheus.GaugeVec

	// --- Rollback / replay ---
	RollbacksTotal *prometheus.CounterVec
	ReplayEvents   *prometheus.CounterVec
	ReplaySeconds  *prometheus.GaugeVec

	// --- Ingestion ---
	IngestMessages     *prometheus.CounterVec
	IngestOutcomes     *prometheus.CounterVec
	IngestDecodeErrors *prometheus.CounterVec

	// --- Contract reads ---
	ContractReads     *prometheus.CounterVec
	ContractReadFails *prometheus.CounterVec

	// --- Storage ---
	StoreWrites        *prometheus.CounterVec
	StoreErrors        *prometheus.CounterVec
	StoreQueryDuration *prometheus.HistogramVec

	// --- Analytics ---
	SnapshotsWritten *prometheus.CounterVec
	RollupUpserts    *prometheus.CounterVec

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registry.
func NewMetrics() *Metrics {
	applyBuckets := []float64{
		0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005,
		0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	storeBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_dispatch_events_applied_total",
			Help: "Events fully applied by a chain partition",
		}, []string{"chain", "kind"}),

		EventsDuplicate: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_dispatch_events_duplicate_total",
			Help: "Events skipped as duplicates, by dedup tier",
		}, []string{"chain", "kind", "tier"}),

		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_dispatch_events_failed_total",
			Help: "Events that failed a handler, by failure class",
		}, []string{"chain", "kind", "reason"}),

		EventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stable_dispatch_event_apply_duration_seconds",
			Help:    "Time to apply a single event end to end",
			Buckets: applyBuckets,
		}, []string{"kind"}),

		CheckpointBlock: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stable_dispatch_checkpoint_block",
			Help: "Last durably applied block number per chain",
		}, []string{"chain"}),

		PartitionHalted: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stable_dispatch_partition_halted",
			Help: "1 when a chain partition halted on a fatal error",
		}, []string{"chain"}),

		RollbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_rollback_total",
			Help: "Rollback notices processed per chain",
		}, []string{"chain"}),

		ReplayEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_replay_events_total",
			Help: "Events reapplied during rollback replay",
		}, []string{"chain"}),

		ReplaySeconds: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stable_replay_duration_seconds",
			Help: "Duration of the most recent rollback replay",
		}, []string{"chain"}),

		IngestMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_ingest_messages_total",
			Help: "JetStream messages received per chain",
		}, []string{"chain"}),

		IngestOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_ingest_outcomes_total",
			Help: "Message dispositions (ack, nak, term)",
		}, []string{"chain", "outcome"}),

		IngestDecodeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_ingest_decode_errors_total",
			Help: "Messages whose payload failed to decode",
		}, []string{"chain"}),

		ContractReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_contract_reads_total",
			Help: "Contract view calls issued",
		}, []string{"function"}),

		ContractReadFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_contract_read_failures_total",
			Help: "Contract view calls that returned an error",
		}, []string{"function"}),

		StoreWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_store_writes_total",
			Help: "Rows written by table and operation shape",
		}, []string{"table", "op"}),

		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_store_errors_total",
			Help: "Storage operations that returned an error",
		}, []string{"table"}),

		StoreQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stable_store_query_duration_seconds",
			Help:    "Storage round-trip time by operation shape",
			Buckets: storeBuckets,
		}, []string{"op"}),

		SnapshotsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_analytics_snapshots_total",
			Help: "Event-triggered analytics snapshot rows written",
		}, []string{"chain"}),

		RollupUpserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_analytics_rollup_upserts_total",
			Help: "Daily rollup upserts",
		}, []string{"chain"}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stable_query_requests_total",
			Help: "Query API requests by route and status code",
		}, []string{"route", "code"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stable_query_duration_seconds",
			Help:    "Query API request duration",
			Buckets: storeBuckets,
		}, []string{"route"}),
	}
}
