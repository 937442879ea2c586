// Package observability provides the prometheus collector, the metrics
// endpoint and OpenTelemetry tracing setup.
package observability

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "catalog-loader/internal/errors"
	"catalog-loader/internal/ingest"
)

// Collector holds all Prometheus metrics for the loader
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	// Ingestion metrics
	IngestLines      *prometheus.CounterVec
	IngestRows       *prometheus.CounterVec
	IngestInFlight   *prometheus.GaugeVec
	IngestRuns       *prometheus.CounterVec
	IngestRunSeconds *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	storeOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	storeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ingestLines := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_lines_total",
			Help:      "Total number of input lines processed, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	ingestRows := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rows_written_total",
			Help:      "Total number of rows written",
		},
		[]string{"kind"},
	)

	ingestInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingest_admission_in_flight",
			Help:      "Lines currently holding an admission permit",
		},
		[]string{"kind"},
	)

	ingestRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Total number of ingestion runs",
		},
		[]string{"kind", "result"},
	)

	ingestRunSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_run_duration_seconds",
			Help:      "Ingestion run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"kind"},
	)

	registry.MustRegister(
		storeOperations,
		storeDuration,
		ingestLines,
		ingestRows,
		ingestInFlight,
		ingestRuns,
		ingestRunSeconds,
	)

	return &Collector{
		registry:         registry,
		StoreOperations:  storeOperations,
		StoreDuration:    storeDuration,
		IngestLines:      ingestLines,
		IngestRows:       ingestRows,
		IngestInFlight:   ingestInFlight,
		IngestRuns:       ingestRuns,
		IngestRunSeconds: ingestRunSeconds,
	}
}

// ObserveStoreCall records one store data call.
func (c *Collector) ObserveStoreCall(op string, d time.Duration, err error) {
	c.StoreOperations.WithLabelValues(op, statusOf(err)).Inc()
	c.StoreDuration.WithLabelValues(op).Observe(d.Seconds())
}

func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(apperrors.TypeOf(err)))
}

// LineSucceeded records a fully written line.
func (c *Collector) LineSucceeded(kind ingest.Kind, rows int) {
	c.IngestLines.WithLabelValues(string(kind), "success").Inc()
	c.IngestRows.WithLabelValues(string(kind)).Add(float64(rows))
}

// LineSkipped records a skipped line.
func (c *Collector) LineSkipped(kind ingest.Kind, reason ingest.SkipReason) {
	c.IngestLines.WithLabelValues(string(kind), string(reason)).Inc()
}

// AdmissionInFlight tracks the admission gate.
func (c *Collector) AdmissionInFlight(kind ingest.Kind, n int64) {
	c.IngestInFlight.WithLabelValues(string(kind)).Set(float64(n))
}

// ObserveRun records a finished ingestion run.
func (c *Collector) ObserveRun(report *ingest.Report) {
	result := "complete"
	switch {
	case report.DrainTimedOut:
		result = "drain_timeout"
	case report.ReaderErr != nil:
		result = "reader_error"
	}
	c.IngestRuns.WithLabelValues(string(report.Kind), result).Inc()
	c.IngestRunSeconds.WithLabelValues(string(report.Kind)).Observe(report.Duration.Seconds())
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
