package domain

import "time"

// HealthStatus grades a dependency probe outcome.
type HealthStatus string

const (
	// HealthStatusOK means the dependency answered within its deadline.
	HealthStatusOK HealthStatus = "ok"
	// HealthStatusDegraded means the dependency answered with an error.
	HealthStatusDegraded HealthStatus = "degraded"
	// HealthStatusError means the probe timed out or was cancelled.
	HealthStatusError HealthStatus = "error"
)

// HealthCheckResult is the outcome of a single dependency probe.
type HealthCheckResult struct {
	Status    HealthStatus
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probe results for readiness responses.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]HealthCheckResult
	GeneratedAt time.Time
}

// Healthy reports whether every dependency probe succeeded.
func (r HealthReport) Healthy() bool {
	return r.Status == HealthStatusOK
}
