// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "ledger_aggregates"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Aggregation metrics
	LedgersProcessed  prometheus.Counter
	LastLedger        prometheus.Gauge
	EventsApplied     *prometheus.CounterVec
	EventsSkipped     *prometheus.CounterVec
	SnapshotsAppended *prometheus.CounterVec
	TransfersApplied  prometheus.Counter
	FatalErrors       *prometheus.CounterVec
	LedgerDuration    prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Query metrics
	CacheRequests    *prometheus.CounterVec
	WebsocketClients prometheus.Gauge

	// Health metrics
	LastSuccessfulLedger prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg uses the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = Namespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		LedgersProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "ledgers_processed_total",
			Help:      "Total number of ledger-close invocations completed",
		}),
		LastLedger: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "last_ledger_sequence",
			Help:      "Sequence of the last completed ledger",
		}),
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "events_applied_total",
			Help:      "Total number of events applied by metric kind",
		}, []string{"metric_kind"}),
		EventsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "events_skipped_total",
			Help:      "Total number of events skipped by reason",
		}, []string{"reason"}),
		SnapshotsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "snapshots_appended_total",
			Help:      "Total number of snapshots appended by metric kind",
		}, []string{"metric_kind"}),
		TransfersApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "transfers_applied_total",
			Help:      "Total number of dual-key transfers applied",
		}),
		FatalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "fatal_errors_total",
			Help:      "Total number of invocations aborted by error kind",
		}, []string{"kind"}),
		LedgerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregation",
			Name:      "ledger_apply_duration_seconds",
			Help:      "Time to apply one ledger-close invocation",
			Buckets:   prometheus.DefBuckets,
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "cache_requests_total",
			Help:      "Summary cache lookups by result",
		}, []string{"result"}),
		WebsocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "websocket_clients",
			Help:      "Number of connected websocket clients",
		}),

		LastSuccessfulLedger: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ledger_timestamp",
			Help:      "Unix timestamp of the last completed ledger invocation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordLedgerProcessed records a completed ledger invocation.
func RecordLedgerProcessed(sequence uint32, duration time.Duration) {
	DefaultMetrics.LedgersProcessed.Inc()
	DefaultMetrics.LastLedger.Set(float64(sequence))
	DefaultMetrics.LedgerDuration.Observe(duration.Seconds())
	DefaultMetrics.LastSuccessfulLedger.SetToCurrentTime()
}

// RecordEventApplied increments the applied counter for kind.
func RecordEventApplied(kind string, transfer bool) {
	DefaultMetrics.EventsApplied.WithLabelValues(kind).Inc()
	if transfer {
		DefaultMetrics.TransfersApplied.Inc()
	}
}

// RecordEventSkipped records a skipped event.
func RecordEventSkipped(reason string) {
	DefaultMetrics.EventsSkipped.WithLabelValues(reason).Inc()
}

// RecordSnapshotAppended increments the snapshot counter for kind.
func RecordSnapshotAppended(kind string) {
	DefaultMetrics.SnapshotsAppended.WithLabelValues(kind).Inc()
}

// RecordFatalError records an aborted invocation.
func RecordFatalError(kind string) {
	DefaultMetrics.FatalErrors.WithLabelValues(kind).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordCacheLookup records a summary cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.CacheRequests.WithLabelValues(result).Inc()
}

// SetWebsocketClients updates the connected client gauge.
func SetWebsocketClients(n int) {
	DefaultMetrics.WebsocketClients.Set(float64(n))
}
