// Package metrics exposes Prometheus instrumentation for the detector.
// All methods are safe on a nil *Metrics so components can run uninstrumented.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "phish_detector"

// Metrics holds the detector's collectors
type Metrics struct {
	gatherer prometheus.Gatherer

	analyses         *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	score            prometheus.Histogram
	threats          *prometheus.CounterVec
	providerCalls    *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	enrichment       *prometheus.CounterVec
	whoisCache       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg gets a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed analyses by provider and level",
		}, []string{"provider", "level"}),
		analysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis latency",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of fused risk scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 85, 100},
		}),
		threats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threats_total",
			Help:      "Threat findings by name",
		}, []string{"threat"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Semantic provider attempts by outcome",
		}, []string{"provider", "outcome"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Analyses aborted by a semantic provider failure",
		}, []string{"provider"}),
		enrichment: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_lookups_total",
			Help:      "Threat-intel lookups by source and availability",
		}, []string{"source", "ok"}),
		whoisCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "whois_cache_lookups_total",
			Help:      "WHOIS cache lookups by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.analyses,
		m.analysisDuration,
		m.score,
		m.threats,
		m.providerCalls,
		m.providerFailures,
		m.enrichment,
		m.whoisCache,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveAnalysis records a completed analysis
func (m *Metrics) ObserveAnalysis(provider, level string, score int, threats []string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(provider, level).Inc()
	m.analysisDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	m.score.Observe(float64(score))
	for _, t := range threats {
		m.threats.WithLabelValues(t).Inc()
	}
}

// ProviderAttempt records one semantic provider attempt
func (m *Metrics) ProviderAttempt(provider string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
}

// ProviderFailure records an analysis aborted by its provider
func (m *Metrics) ProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(provider).Inc()
}

// Enrichment records a WHOIS, SSL or CT lookup
func (m *Metrics) Enrichment(source string, ok bool) {
	if m == nil {
		return
	}
	m.enrichment.WithLabelValues(source, strconv.FormatBool(ok)).Inc()
}

// WhoisCache records a cache lookup result: hit, miss or expired
func (m *Metrics) WhoisCache(result string) {
	if m == nil {
		return
	}
	m.whoisCache.WithLabelValues(result).Inc()
}
