// Package observability exposes censusd's Prometheus metrics: per-
// handler request counters, latency histograms, and domain release
// counters, backed by CounterVec/HistogramVec/GaugeVec and
// promhttp.Handler.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide metrics registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	Requests5xxTotal *prometheus.CounterVec
	RequestLatency   *prometheus.HistogramVec

	ReleasesTotal          *prometheus.CounterVec
	BudgetRemaining        *prometheus.GaugeVec
	SketchCardinality      *prometheus.GaugeVec
	IngestBatchSize        prometheus.Histogram
	RateLimitRejectedTotal *prometheus.CounterVec

	devMetricsEnabled bool
}

// New builds and registers every metric. devMetrics gates
// turnstile_sketch_cardinality, which exposes pre-noise raw counts
// and must stay off outside development.
func New(devMetrics bool) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:          reg,
		devMetricsEnabled: devMetrics,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "app_requests_total",
			Help: "Total HTTP requests by handler, method and status.",
		}, []string{"handler", "method", "status"}),
		Requests5xxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "app_requests_5xx_total",
			Help: "Total HTTP requests that resulted in a 5xx response.",
		}, []string{"handler", "method"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "app_request_latency_seconds",
			Help:    "HTTP request latency in seconds by handler and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler", "method"}),
		ReleasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_releases_total",
			Help: "Total DP releases by metric and noise mechanism.",
		}, []string{"metric", "mechanism"}),
		BudgetRemaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "turnstile_budget_remaining",
			Help: "Remaining naive epsilon budget for the current month, by metric.",
		}, []string{"metric"}),
		SketchCardinality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "turnstile_sketch_cardinality",
			Help: "Pre-noise sketch cardinality by metric and day (development only).",
		}, []string{"metric", "day"}),
		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "turnstile_ingest_batch_size",
			Help:    "Size of ingest batches flushed to the ledger.",
			Buckets: []float64{1, 8, 32, 128, 256, 512, 1024, 4096},
		}),
		RateLimitRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_ratelimit_rejected_total",
			Help: "Total requests rejected by the ingest sliding-window rate limiter.",
		}, []string{"key_prefix"}),
	}

	reg.MustRegister(
		m.RequestsTotal, m.Requests5xxTotal, m.RequestLatency,
		m.ReleasesTotal, m.BudgetRemaining, m.IngestBatchSize,
		m.RateLimitRejectedTotal,
	)
	if devMetrics {
		reg.MustRegister(m.SketchCardinality)
	}
	return m
}

// ObserveSketchCardinality is a no-op outside development, keeping
// raw pre-noise counts out of production metrics scrapes.
func (m *Metrics) ObserveSketchCardinality(metric, day string, value float64) {
	if !m.devMetricsEnabled {
		return
	}
	m.SketchCardinality.WithLabelValues(metric, day).Set(value)
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
