package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation latency and outcomes to a
// Prometheus registry.
type PrometheusMetricsRecorder struct {
	registry  *prometheus.Registry
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers collectors labelled with component
// (for example "token" or "supply_chain") on registry. Recorders for several
// components may share one registry. A nil registry gets a fresh one.
func NewPrometheusMetricsRecorder(registry *prometheus.Registry, component string) *PrometheusMetricsRecorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	labels := prometheus.Labels{"component": component}
	rec := &PrometheusMetricsRecorder{
		registry: registry,
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "supplyledger",
			Subsystem:   "service",
			Name:        "operation_duration_seconds",
			Help:        "Latency of committed and failed service operations",
			ConstLabels: labels,
			Buckets:     []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "supplyledger",
			Subsystem:   "service",
			Name:        "operations_total",
			Help:        "Number of service operations by outcome",
			ConstLabels: labels,
		}, []string{"operation", "status"}),
	}
	rec.registry.MustRegister(rec.durations, rec.results)
	return rec
}

// Registry exposes the registry for gathering or HTTP exposition.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry { return r.registry }

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *PrometheusMetricsRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
