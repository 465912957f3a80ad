// Package telemetry provides observability for the sandbox daemon:
// structured logging, a lightweight tracer, and Prometheus metrics.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the daemon's Prometheus series. It is registered
// against a caller-supplied registry so tests and the daemon each use
// their own (the daemon hands the same registry to the ops server).
type Metrics struct {
	SessionsActive       prometheus.Gauge
	SessionsCreatedTotal prometheus.Counter
	SessionsReapedTotal  prometheus.Counter
	ExecutionsTotal      *prometheus.CounterVec
	ExecutionDuration    *prometheus.HistogramVec
}

// NewMetrics creates the daemon's metric series and registers them
// against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sandboxd_sessions_active",
			Help: "Number of live sessions currently held by the session manager.",
		}),
		SessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandboxd_sessions_created_total",
			Help: "Total number of sessions created.",
		}),
		SessionsReapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandboxd_sessions_reaped_total",
			Help: "Total number of sessions evicted by the idle/lifetime reaper.",
		}),
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sandboxd_executions_total",
			Help: "Total number of run-tool invocations, by environment and outcome.",
		}, []string{"env", "mode", "status"}),
		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sandboxd_execution_duration_seconds",
			Help:    "Wall-clock duration of run-tool invocations, by environment and mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"env", "mode"}),
	}

	reg.MustRegister(
		m.SessionsActive,
		m.SessionsCreatedTotal,
		m.SessionsReapedTotal,
		m.ExecutionsTotal,
		m.ExecutionDuration,
	)
	return m
}

// ObserveExecution records the outcome of one run-tool invocation.
// mode is "ephemeral" or "session"; status is "ok" or "error".
func (m *Metrics) ObserveExecution(env, mode, status string, duration time.Duration) {
	m.ExecutionsTotal.WithLabelValues(env, mode, status).Inc()
	m.ExecutionDuration.WithLabelValues(env, mode).Observe(duration.Seconds())
}
