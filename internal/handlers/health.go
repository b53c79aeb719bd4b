package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	domain "github.com/fabriqly/api/internal/domain"
	"github.com/fabriqly/api/internal/repositories"
)

// BuildInfo carries release metadata surfaced on health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthHandlers serves the /healthz and /readyz endpoints.
type HealthHandlers struct {
	build  BuildInfo
	health repositories.HealthRepository
	clock  func() time.Time
}

// HealthOption customises the health handler set.
type HealthOption func(*HealthHandlers)

// WithHealthBuildInfo attaches release metadata to health responses.
func WithHealthBuildInfo(info BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = info
	}
}

// WithHealthRepository wires the dependency probe collector used by /readyz.
func WithHealthRepository(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) {
		h.health = repo
	}
}

// WithHealthClock overrides the time source, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the health handler set.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		build: BuildInfo{StartedAt: time.Now().UTC()},
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.build.StartedAt.IsZero() {
		h.build.StartedAt = h.clock().UTC()
	}
	return h
}

// Healthz reports liveness along with build metadata.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	payload := map[string]any{
		"status":    string(domain.HealthStatusOK),
		"uptime":    now.Sub(h.build.StartedAt).String(),
		"timestamp": now.Format(time.RFC3339),
	}
	if h.build.Version != "" {
		payload["version"] = h.build.Version
	}
	if h.build.CommitSHA != "" {
		payload["commitSha"] = h.build.CommitSHA
	}
	if h.build.Environment != "" {
		payload["environment"] = h.build.Environment
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

// Readyz probes backing dependencies and reports readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	if h.health == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"status":    string(domain.HealthStatusOK),
			"timestamp": now.Format(time.RFC3339),
		})
		return
	}

	report, err := h.health.Collect(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status":    string(domain.HealthStatusError),
			"timestamp": now.Format(time.RFC3339),
			"details":   []string{err.Error()},
		})
		return
	}

	checks := make(map[string]map[string]any, len(report.Checks))
	details := make([]string, 0)
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":  string(check.Status),
			"latency": check.Latency.String(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
			details = append(details, fmt.Sprintf("%s: %s", name, check.Error))
		}
		checks[name] = entry
	}
	sort.Strings(details)

	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, status, map[string]any{
		"status":    string(report.Status),
		"timestamp": now.Format(time.RFC3339),
		"checks":    checks,
		"details":   details,
	})
}
