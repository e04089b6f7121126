// Package metrics bundles Prometheus collectors for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics aggregates counters across all pipeline stages on one registry.
// A nil *Metrics is safe to use and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RowsCollected    prometheus.Counter
	RowsExcluded     prometheus.Counter
	Enrichments      *prometheus.CounterVec
	Classifications  *prometheus.CounterVec
	ClassifyDuration prometheus.Histogram
	FilterFallbacks  prometheus.Counter
	RunsTotal        *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	rowsCollected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tender_rows_collected_total",
		Help: "Result rows accepted during collection.",
	})
	rowsExcluded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tender_rows_excluded_total",
		Help: "Result rows dropped by the excluded-organization filter.",
	})
	enrichments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tender_enrichments_total",
		Help: "Description fetch attempts by outcome.",
	}, []string{"outcome"})
	classifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tender_classifications_total",
		Help: "Relevance classifications by verdict.",
	}, []string{"verdict"})
	classifyDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tender_classify_duration_seconds",
		Help:    "Latency of individual classification calls.",
		Buckets: prometheus.DefBuckets,
	})
	filterFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tender_filter_fallbacks_total",
		Help: "Runs where the relevance filter was bypassed entirely.",
	})
	runsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tender_runs_total",
		Help: "Pipeline runs by final status.",
	}, []string{"status"})

	registry.MustRegister(rowsCollected, rowsExcluded, enrichments,
		classifications, classifyDuration, filterFallbacks, runsTotal)

	return &Metrics{
		Registry:         registry,
		RowsCollected:    rowsCollected,
		RowsExcluded:     rowsExcluded,
		Enrichments:      enrichments,
		Classifications:  classifications,
		ClassifyDuration: classifyDuration,
		FilterFallbacks:  filterFallbacks,
		RunsTotal:        runsTotal,
	}
}

// IncCollected counts one accepted result row.
func (m *Metrics) IncCollected() {
	if m == nil {
		return
	}
	m.RowsCollected.Inc()
}

// IncExcluded counts one row dropped by the organization filter.
func (m *Metrics) IncExcluded() {
	if m == nil {
		return
	}
	m.RowsExcluded.Inc()
}

// IncEnrichment counts a description fetch with an outcome label.
func (m *Metrics) IncEnrichment(outcome string) {
	if m == nil {
		return
	}
	m.Enrichments.WithLabelValues(outcome).Inc()
}

// IncClassification counts a relevance verdict.
func (m *Metrics) IncClassification(verdict string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(verdict).Inc()
}

// ObserveClassify records the latency of one classification call.
func (m *Metrics) ObserveClassify(d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifyDuration.Observe(d.Seconds())
}

// IncFallback counts a run that bypassed the filter stage.
func (m *Metrics) IncFallback() {
	if m == nil {
		return
	}
	m.FilterFallbacks.Inc()
}

// IncRun counts a completed run by status.
func (m *Metrics) IncRun(status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
}
