// Package metrics provides Prometheus metrics for ingestion and retrieval.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	IngestOutcomesTotal *prometheus.CounterVec
	ChunksWrittenTotal  prometheus.Counter
	StaleChunksTotal    prometheus.Counter

	// Embedding
	EmbedRequestsTotal *prometheus.CounterVec
	EmbedRetriesTotal  prometheus.Counter

	// Retrieval
	SearchDuration     *prometheus.HistogramVec
	SearchResultsTotal prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)
	m.registry = reg
	return m
}

// NewWithRegisterer creates the collectors and registers them on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestOutcomesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "druginfo_ingest_records_total",
				Help: "Raw records processed by ingestion, by outcome",
			},
			[]string{"outcome"},
		),
		ChunksWrittenTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "druginfo_ingest_chunks_total",
				Help: "Section chunks written to both stores",
			},
		),
		StaleChunksTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "druginfo_ingest_stale_chunks_total",
				Help: "Section chunks removed because a re-ingest produced fewer parts",
			},
		),
		EmbedRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "druginfo_embed_requests_total",
				Help: "Embedding calls by caller and status",
			},
			[]string{"caller", "status"},
		),
		EmbedRetriesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "druginfo_embed_retries_total",
				Help: "Embedding calls retried after a transient failure",
			},
		),
		SearchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "druginfo_search_duration_seconds",
				Help:    "Duration of hybrid searches in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
		SearchResultsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "druginfo_search_results_total",
				Help: "Passages returned by hybrid searches",
			},
		),
	}
}

// Handler serves the exposition format for the registry created by New.
// Metrics built with NewWithRegisterer are served by the default handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOutcome counts one ingestion outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.IngestOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordChunks counts chunks written and stale chunks removed for one product.
func (m *Metrics) RecordChunks(written, stale int) {
	if m == nil {
		return
	}
	m.ChunksWrittenTotal.Add(float64(written))
	m.StaleChunksTotal.Add(float64(stale))
}

// RecordEmbed counts one embedding call.
func (m *Metrics) RecordEmbed(caller string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EmbedRequestsTotal.WithLabelValues(caller, status).Inc()
}

// RecordEmbedRetry counts one retried embedding call.
func (m *Metrics) RecordEmbedRetry() {
	if m == nil {
		return
	}
	m.EmbedRetriesTotal.Inc()
}

// RecordSearch records a search with its status and result count.
func (m *Metrics) RecordSearch(status string, results int, duration time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.SearchResultsTotal.Add(float64(results))
}
