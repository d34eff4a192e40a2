// Package metrics provides Prometheus metrics for the sensor ETL pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Run metrics
	RunsStarted   prometheus.Counter
	RunsCompleted *prometheus.CounterVec // by terminal status
	RunDuration   prometheus.Histogram

	// Batch metrics
	BatchesProcessed  prometheus.Counter
	BatchesFailed     prometheus.Counter
	BatchLoadDuration prometheus.Histogram

	// Record metrics
	RecordsProcessed prometheus.Counter
	RecordsFailed    prometheus.Counter
	RecordsCorrupt   prometheus.Counter
	RecordsInserted  prometheus.Counter
	RecordsUpdated   prometheus.Counter

	// Error metrics
	RetryAttempts *prometheus.CounterVec // by operation
	StoreErrors   *prometheus.CounterVec // by store

	// End of the most recently completed window, unix seconds. Lets an
	// operator spot a pipeline that silently stopped making progress.
	LastWindowEnd prometheus.Gauge

	// Export metrics
	ExportsCompleted *prometheus.CounterVec // by store
	ExportsFailed    *prometheus.CounterVec // by store
}

var defaultMetrics *Metrics

// Init initializes the metrics package with global metrics.
// Call this once at startup.
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sensor_etl"
	}

	m := &Metrics{
		RunsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of pipeline runs started",
			},
		),
		RunsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of pipeline runs by terminal status",
			},
			[]string{"status"},
		),
		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Total time for one pipeline run",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~400s
			},
		),
		BatchesProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_processed_total",
				Help:      "Total number of batches committed to the target store",
			},
		),
		BatchesFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_failed_total",
				Help:      "Total number of batches that failed after all retries",
			},
		),
		BatchLoadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_load_duration_seconds",
				Help:      "Time to load one batch (transaction commit included)",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		RecordsProcessed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_processed_total",
				Help:      "Total number of readings loaded into the target store",
			},
		),
		RecordsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_failed_total",
				Help:      "Total number of readings rejected by validation",
			},
		),
		RecordsCorrupt: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_corrupt_total",
				Help:      "Total number of malformed rows excluded at extraction",
			},
		),
		RecordsInserted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_inserted_total",
				Help:      "Total number of upserts that created a new row",
			},
		),
		RecordsUpdated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_updated_total",
				Help:      "Total number of upserts that updated an existing row",
			},
		),
		RetryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of retry attempts",
			},
			[]string{"operation"},
		),
		StoreErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Total number of store connectivity errors",
			},
			[]string{"store"},
		),
		LastWindowEnd: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_window_end_timestamp_seconds",
				Help:      "End of the window of the last completed run, unix seconds",
			},
		),
		ExportsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_completed_total",
				Help:      "Total number of spreadsheet exports written",
			},
			[]string{"store"},
		),
		ExportsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_failed_total",
				Help:      "Total number of spreadsheet exports that failed",
			},
			[]string{"store"},
		),
	}

	defaultMetrics = m
	return m
}

// Get returns the global metrics instance.
// Returns nil if Init has not been called.
func Get() *Metrics {
	return defaultMetrics
}

// IncRunsCompleted increments the run counter for a terminal status.
func (m *Metrics) IncRunsCompleted(status string) {
	m.RunsCompleted.WithLabelValues(status).Inc()
}

// IncRetryAttempts increments the retry counter for an operation.
func (m *Metrics) IncRetryAttempts(operation string) {
	m.RetryAttempts.WithLabelValues(operation).Inc()
}

// IncStoreErrors increments the connectivity error counter for a store.
func (m *Metrics) IncStoreErrors(store string) {
	m.StoreErrors.WithLabelValues(store).Inc()
}

// IncExportsCompleted increments the export counter for a store.
func (m *Metrics) IncExportsCompleted(store string) {
	m.ExportsCompleted.WithLabelValues(store).Inc()
}

// IncExportsFailed increments the failed export counter for a store.
func (m *Metrics) IncExportsFailed(store string) {
	m.ExportsFailed.WithLabelValues(store).Inc()
}
