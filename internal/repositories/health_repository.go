package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/fabriqly/api/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyProbe describes one downstream dependency checked during readiness.
type DependencyProbe struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// ProbeHealthOption customises the probe-backed health repository.
type ProbeHealthOption func(*probeHealthRepository)

// WithProbeTimeout overrides the default timeout applied when a probe omits its own.
func WithProbeTimeout(timeout time.Duration) ProbeHealthOption {
	return func(repo *probeHealthRepository) {
		if timeout > 0 {
			repo.defaultTimeout = timeout
		}
	}
}

// WithProbeClock injects a custom clock, primarily for tests.
func WithProbeClock(clock func() time.Time) ProbeHealthOption {
	return func(repo *probeHealthRepository) {
		if clock != nil {
			repo.now = clock
		}
	}
}

type probeHealthRepository struct {
	probes         []DependencyProbe
	defaultTimeout time.Duration
	now            func() time.Time
}

var _ HealthRepository = (*probeHealthRepository)(nil)

// NewProbeHealthRepository constructs a HealthRepository that runs the given probes concurrently.
func NewProbeHealthRepository(probes []DependencyProbe, opts ...ProbeHealthOption) (HealthRepository, error) {
	if len(probes) == 0 {
		return nil, errors.New("health repository: at least one dependency probe is required")
	}
	for _, probe := range probes {
		if strings.TrimSpace(probe.Name) == "" {
			return nil, errors.New("health repository: dependency probe missing name")
		}
		if probe.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", probe.Name)
		}
	}

	repo := &probeHealthRepository{
		probes:         make([]DependencyProbe, len(probes)),
		defaultTimeout: defaultProbeTimeout,
		now:            time.Now,
	}
	copy(repo.probes, probes)

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

func (r *probeHealthRepository) Collect(ctx context.Context) (domain.HealthReport, error) {
	if ctx == nil {
		return domain.HealthReport{}, errors.New("health repository: context is required")
	}

	results := make(map[string]domain.HealthCheckResult, len(r.probes))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	wg.Add(len(r.probes))
	for _, probe := range r.probes {
		probe := probe
		go func() {
			defer wg.Done()

			timeout := probe.Timeout
			if timeout <= 0 {
				timeout = r.defaultTimeout
			}
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := r.now()
			err := probe.Check(probeCtx)
			end := r.now()

			result := domain.HealthCheckResult{
				Status:    domain.HealthStatusOK,
				Detail:    "ok",
				Latency:   end.Sub(start),
				CheckedAt: end,
			}
			switch {
			case err == nil && probeCtx.Err() != nil:
				result.Status = domain.HealthStatusError
				result.Detail = probeCtx.Err().Error()
				result.Error = probeCtx.Err().Error()
			case errors.Is(err, context.Canceled):
				result.Status = domain.HealthStatusError
				result.Detail = "cancelled"
				result.Error = err.Error()
			case errors.Is(err, context.DeadlineExceeded):
				result.Status = domain.HealthStatusError
				result.Detail = "timeout"
				result.Error = err.Error()
			case err != nil:
				result.Status = domain.HealthStatusDegraded
				result.Detail = err.Error()
				result.Error = err.Error()
			}

			mu.Lock()
			results[probe.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	reportStatus := domain.HealthStatusOK
	for _, result := range results {
		if result.Status == domain.HealthStatusError {
			reportStatus = domain.HealthStatusError
			break
		}
		if result.Status == domain.HealthStatusDegraded {
			reportStatus = domain.HealthStatusDegraded
		}
	}

	return domain.HealthReport{
		Status:      reportStatus,
		Checks:      results,
		GeneratedAt: r.now(),
	}, nil
}
