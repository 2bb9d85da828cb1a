package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Synchronization metrics
	syncPassesTotal       *prometheus.CounterVec
	syncPassDuration      *prometheus.HistogramVec
	operationsDerivedTotal *prometheus.CounterVec
	transactionsDroppedTotal *prometheus.CounterVec

	// Preparation metrics
	commandsPreparedTotal  *prometheus.CounterVec
	ancillaryOpsPackedTotal *prometheus.CounterVec
	packingStopsTotal      *prometheus.CounterVec

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Temporal activity metrics
	activityDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		syncPassesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_passes_total",
				Help: "Total number of account sync passes by status",
			},
			[]string{"account", "status"},
		),
		syncPassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_pass_duration_seconds",
				Help:    "Duration of one full account sync pass in seconds",
				Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"account"},
		),
		operationsDerivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "operations_derived_total",
				Help: "Total number of ledger operations derived from transactions",
			},
			[]string{"account", "kind"},
		),
		transactionsDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_dropped_total",
				Help: "Total number of transactions dropped during derivation",
			},
			[]string{"account", "reason"},
		),

		commandsPreparedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commands_prepared_total",
				Help: "Total number of transfer commands prepared by kind and status",
			},
			[]string{"kind", "status"},
		),
		ancillaryOpsPackedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ancillary_ops_packed_total",
				Help: "Total number of ancillary token operations packed into transactions",
			},
			[]string{"kind"},
		),
		packingStopsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "packing_stops_total",
				Help: "Total number of packing passes stopped by the transaction size ceiling",
			},
			[]string{"account"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),

		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "temporal_activity_duration_seconds",
				Help:    "Duration of Temporal activity executions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"activity", "account"},
		),
	}
}

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordSyncPass records a completed (or failed) account sync pass.
func (m *Metrics) RecordSyncPass(account, status string, duration float64) {
	m.syncPassesTotal.WithLabelValues(account, status).Inc()
	m.syncPassDuration.WithLabelValues(account).Observe(duration)
}

// RecordOperationsDerived records derived ledger operations by kind.
func (m *Metrics) RecordOperationsDerived(account, kind string, count int) {
	m.operationsDerivedTotal.WithLabelValues(account, kind).Add(float64(count))
}

// RecordTransactionsDropped records transactions excluded from derivation.
func (m *Metrics) RecordTransactionsDropped(account, reason string, count int) {
	m.transactionsDroppedTotal.WithLabelValues(account, reason).Add(float64(count))
}

// RecordCommandPrepared records the outcome of one preparation call.
func (m *Metrics) RecordCommandPrepared(kind, status string) {
	m.commandsPreparedTotal.WithLabelValues(kind, status).Inc()
}

// RecordAncillaryOpsPacked records consolidation operations that fit in a
// transaction.
func (m *Metrics) RecordAncillaryOpsPacked(kind string, count int) {
	m.ancillaryOpsPackedTotal.WithLabelValues(kind).Add(float64(count))
}

// RecordPackingStop records a packing pass terminated by the size ceiling.
func (m *Metrics) RecordPackingStop(account string) {
	m.packingStopsTotal.WithLabelValues(account).Inc()
}

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table, status string, duration float64) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordNATSPublish records a NATS publish with duration.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// RecordActivityDuration records a Temporal activity execution with duration.
func (m *Metrics) RecordActivityDuration(activity, account string, duration float64) {
	m.activityDuration.WithLabelValues(activity, account).Observe(duration)
}
