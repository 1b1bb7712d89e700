package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder observes pipeline recomputations and export outcomes.
type MetricsRecorder interface {
	ObserveRecompute(dataset string, duration time.Duration)
	IncExport(dataset, format, status string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRecompute(string, time.Duration) {}
func (nopMetrics) IncExport(string, string, string)       {}

// NopMetrics returns a recorder that discards everything.
func NopMetrics() MetricsRecorder { return nopMetrics{} }

// PrometheusMetrics implements MetricsRecorder on top of prometheus
// collectors registered against the supplied registerer.
type PrometheusMetrics struct {
	recomputes *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	exports    *prometheus.CounterVec
}

// NewPrometheusMetrics registers and returns the engine collectors. Passing a
// nil registerer falls back to the default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridcore",
			Name:      "view_recomputes_total",
			Help:      "Pipeline recomputations per dataset.",
		}, []string{"dataset"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridcore",
			Name:      "view_recompute_seconds",
			Help:      "Pipeline recomputation latency per dataset.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"dataset"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridcore",
			Name:      "exports_total",
			Help:      "Export attempts by dataset, format, and outcome.",
		}, []string{"dataset", "format", "status"}),
	}
	reg.MustRegister(m.recomputes, m.duration, m.exports)
	return m
}

// ObserveRecompute records one pipeline run.
func (m *PrometheusMetrics) ObserveRecompute(dataset string, duration time.Duration) {
	m.recomputes.WithLabelValues(dataset).Inc()
	m.duration.WithLabelValues(dataset).Observe(duration.Seconds())
}

// IncExport counts one export attempt outcome.
func (m *PrometheusMetrics) IncExport(dataset, format, status string) {
	m.exports.WithLabelValues(dataset, format, status).Inc()
}
