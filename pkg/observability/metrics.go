package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Session lifecycle metrics
	SessionOperationsTotal   *prometheus.CounterVec
	SessionOperationDuration *prometheus.HistogramVec
	SessionsActive           prometheus.Gauge

	// Session cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Cleanup sweep metrics
	SweepRunsTotal     *prometheus.CounterVec
	SweepSessionsTotal *prometheus.CounterVec
	SweepDuration      prometheus.Histogram

	// Audit / notification metrics
	AuditEntriesTotal    *prometheus.CounterVec
	AuditWriteFailures   prometheus.Counter
	NotificationsTotal   *prometheus.CounterVec
	NotificationFailures prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"operation", "outcome"},
		),
		SessionOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_session_operations_total",
				Help: "Total number of session lifecycle operations",
			},
			[]string{"operation", "status"},
		),
		SessionOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warden_session_operation_duration_seconds",
				Help:    "Session operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "warden_sessions_active",
				Help: "Number of currently active sessions",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_session_cache_hits_total",
				Help: "Total number of session cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_session_cache_misses_total",
				Help: "Total number of session cache misses",
			},
		),
		SweepRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sweep_runs_total",
				Help: "Total number of cleanup sweep runs",
			},
			[]string{"status"},
		),
		SweepSessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_sweep_sessions_total",
				Help: "Total number of sessions handled by cleanup sweeps",
			},
			[]string{"outcome"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warden_sweep_duration_seconds",
				Help:    "Cleanup sweep duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		AuditEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_audit_entries_total",
				Help: "Total number of audit entries recorded",
			},
			[]string{"severity"},
		),
		AuditWriteFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_audit_write_failures_total",
				Help: "Total number of swallowed audit write failures",
			},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_notifications_total",
				Help: "Total number of notifications forwarded to the sink",
			},
			[]string{"channel"},
		),
		NotificationFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_notification_failures_total",
				Help: "Total number of swallowed notification failures",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.AuthzDecisionsTotal,
		m.SessionOperationsTotal,
		m.SessionOperationDuration,
		m.SessionsActive,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SweepRunsTotal,
		m.SweepSessionsTotal,
		m.SweepDuration,
		m.AuditEntriesTotal,
		m.AuditWriteFailures,
		m.NotificationsTotal,
		m.NotificationFailures,
	)

	return m
}

// Handler returns an HTTP handler that serves the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
