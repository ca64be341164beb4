// Package observability provides structured logging, Prometheus metrics, and
// health checks for the Warden access-control core.
//
// # Logging
//
// The Logger wraps stdlib slog with a JSON handler and field chaining:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("session_id", id).Info("session revoked")
//
// Request-scoped values (request ID, client IP) travel through context under
// the contextkeys package's keys and are attached automatically by
// FromContext.
//
// # Metrics
//
// NewMetrics registers counters and histograms for authorization decisions,
// session lifecycle operations, cache effectiveness, and cleanup sweeps on a
// Prometheus registry. Expose them with Handler().
//
// # Health
//
// HealthChecker probes the session database and the Redis cache and serves
// liveness/readiness endpoints suitable for k8s probes.
package observability
