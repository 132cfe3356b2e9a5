// Package metrics defines the Prometheus metric collectors used across the
// search engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SuggestQueriesTotal  prometheus.Counter
	FuzzyDowngradesTotal prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	DocsUpsertedTotal    prometheus.Counter
	DocsRemovedTotal     prometheus.Counter
	IndexDocCount        prometheus.Gauge
	SyncBatchesTotal     *prometheus.CounterVec
	SyncCursorLag        prometheus.Gauge
	ReconcileRunsTotal   *prometheus.CounterVec
	OrphansRemovedTotal  prometheus.Counter
	RebuildsTotal        prometheus.Counter
	StalenessWarnings    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search pipeline executions by outcome (ok, zero_result, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search pipeline latency in seconds by outcome.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"outcome"},
		),
		SuggestQueriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "suggest_queries_total",
				Help: "Total autocomplete suggest queries.",
			},
		),
		FuzzyDowngradesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fuzzy_downgrades_total",
				Help: "Queries whose fuzzy matching was downgraded to exact after exceeding the budget.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses, including revision-invalidated entries.",
			},
		),
		DocsUpsertedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_docs_upserted_total",
				Help: "Total documents upserted into the inverted index.",
			},
		),
		DocsRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_docs_removed_total",
				Help: "Total documents removed from the inverted index.",
			},
		),
		IndexDocCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_document_count",
				Help: "Current number of documents resident in the inverted index.",
			},
		),
		SyncBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sync_batches_total",
				Help: "Total change batches pulled from the catalog store by status.",
			},
			[]string{"status"},
		),
		SyncCursorLag: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sync_cursor_lag_records",
				Help: "Number of catalog revisions not yet applied to the index.",
			},
		),
		ReconcileRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_runs_total",
				Help: "Total reconciliation passes by outcome (clean, repaired, rebuild).",
			},
			[]string{"outcome"},
		),
		OrphansRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reconcile_orphans_removed_total",
				Help: "Index documents removed because their catalog record no longer exists.",
			},
		),
		RebuildsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Full index rebuilds triggered by bootstrap or corruption.",
			},
		),
		StalenessWarnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "staleness_warnings_total",
				Help: "Results served from an index state older than the configured staleness bound.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SuggestQueriesTotal,
		m.FuzzyDowngradesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsUpsertedTotal,
		m.DocsRemovedTotal,
		m.IndexDocCount,
		m.SyncBatchesTotal,
		m.SyncCursorLag,
		m.ReconcileRunsTotal,
		m.OrphansRemovedTotal,
		m.RebuildsTotal,
		m.StalenessWarnings,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
