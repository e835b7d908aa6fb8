package observability

import (
	"context"
	"sync"
	"time"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// ReadinessReport is the aggregated result of the dependency checks.
type ReadinessReport struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Commit  string                 `json:"commit"`
	Checks  map[string]CheckResult `json:"checks"`
}

// Ready reports whether every check passed.
func (r ReadinessReport) Ready() bool { return r.Status == "ready" }

// CheckResult is the result of a single readiness check.
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthChecker can verify its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function, such as a store's Ping, to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

const checkTimeout = 2 * time.Second

// CheckReadiness runs all checks concurrently, each bounded by its own
// timeout. Nil checkers are skipped. Results are also recorded on m when
// it is non-nil.
func CheckReadiness(ctx context.Context, checks map[string]HealthChecker, m *Metrics) ReadinessReport {
	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, checker := range checks {
		if checker == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := runCheck(ctx, checker)
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	status := "ready"
	for name, result := range results {
		m.SetDependencyUp(name, result.Status == "ok")
		if result.Status != "ok" {
			status = "not_ready"
		}
	}

	return ReadinessReport{
		Status:  status,
		Version: Version,
		Commit:  Commit,
		Checks:  results,
	}
}

// runCheck executes a health check with a per-check timeout.
func runCheck(parent context.Context, checker HealthChecker) CheckResult {
	ctx, cancel := context.WithTimeout(parent, checkTimeout)
	defer cancel()

	start := time.Now()
	err := checker.HealthCheck(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return CheckResult{
			Status:    "error",
			LatencyMs: latency,
			Error:     err.Error(),
		}
	}
	return CheckResult{
		Status:    "ok",
		LatencyMs: latency,
	}
}
