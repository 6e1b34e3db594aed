// Package metrics defines the Prometheus metric collectors used across the
// sync engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the sync engine.
type Metrics struct {
	DocsIndexedTotal    *prometheus.CounterVec
	DocsFailedTotal     *prometheus.CounterVec
	BulkBatchesTotal    *prometheus.CounterVec
	BulkBatchDuration   *prometheus.HistogramVec
	SourceChunksTotal   *prometheus.CounterVec
	SourceQueryCount    *prometheus.CounterVec
	MigrationsTotal     *prometheus.CounterVec
	ReindexRunsTotal    *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them on the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_docs_indexed_total",
				Help: "Total documents committed to the write target by document type.",
			},
			[]string{"doc_type"},
		),
		DocsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_docs_failed_total",
				Help: "Total per-document failures by document type and reason.",
			},
			[]string{"doc_type", "reason"},
		),
		BulkBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_bulk_batches_total",
				Help: "Total bulk-write batches by document type and status.",
			},
			[]string{"doc_type", "status"},
		),
		BulkBatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sync_bulk_batch_duration_seconds",
				Help:    "Bulk-write batch latency in seconds.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"doc_type"},
		),
		SourceChunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_source_chunks_total",
				Help: "Total source-of-truth pages fetched by document type.",
			},
			[]string{"doc_type"},
		),
		SourceQueryCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_source_queries_total",
				Help: "Total SQL queries issued against the source of truth.",
			},
			[]string{"doc_type"},
		),
		MigrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_migrations_total",
				Help: "Total alias migrations by document type and kind (write, read).",
			},
			[]string{"doc_type", "kind"},
		),
		ReindexRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_reindex_runs_total",
				Help: "Total reindex runs by outcome (success, partial, fatal).",
			},
			[]string{"outcome"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sync_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.DocsFailedTotal,
		m.BulkBatchesTotal,
		m.BulkBatchDuration,
		m.SourceChunksTotal,
		m.SourceQueryCount,
		m.MigrationsTotal,
		m.ReindexRunsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Nop returns a Metrics wired to a private registry, for callers that do not
// scrape (tests, library embedding).
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
