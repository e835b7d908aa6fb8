package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) HealthCheck(_ context.Context) error {
	return m.err
}

func TestCheckReadiness_allHealthy(t *testing.T) {
	report := CheckReadiness(context.Background(), map[string]HealthChecker{
		"submission_store":  &mockHealthChecker{},
		"idempotency_store": &mockHealthChecker{},
		"catalogue":         HealthCheckFunc(func(context.Context) error { return nil }),
	}, nil)

	if !report.Ready() {
		t.Errorf("status = %q, want ready", report.Status)
	}
	if len(report.Checks) != 3 {
		t.Errorf("checks count = %d, want 3", len(report.Checks))
	}
	for name, check := range report.Checks {
		if check.Status != "ok" {
			t.Errorf("%s = %q, want ok", name, check.Status)
		}
		if check.LatencyMs < 0 {
			t.Errorf("%s latency = %d, should be >= 0", name, check.LatencyMs)
		}
	}
	if report.Version != Version || report.Commit != Commit {
		t.Errorf("version/commit = %q/%q", report.Version, report.Commit)
	}
}

func TestCheckReadiness_storeDown(t *testing.T) {
	report := CheckReadiness(context.Background(), map[string]HealthChecker{
		"submission_store":  &mockHealthChecker{err: errors.New("connection refused")},
		"idempotency_store": &mockHealthChecker{},
	}, nil)

	if report.Ready() {
		t.Fatal("status = ready, want not_ready")
	}
	got := report.Checks["submission_store"]
	if got.Status != "error" || got.Error != "connection refused" {
		t.Errorf("submission_store = %+v", got)
	}
	if report.Checks["idempotency_store"].Status != "ok" {
		t.Errorf("idempotency_store = %q, want ok", report.Checks["idempotency_store"].Status)
	}
}

func TestCheckReadiness_nilCheckerSkipped(t *testing.T) {
	report := CheckReadiness(context.Background(), map[string]HealthChecker{
		"submission_store":  &mockHealthChecker{},
		"idempotency_store": nil,
	}, nil)

	if !report.Ready() {
		t.Errorf("status = %q, want ready", report.Status)
	}
	if _, ok := report.Checks["idempotency_store"]; ok {
		t.Error("nil checker should not produce a result")
	}
}

func TestCheckReadiness_noChecks(t *testing.T) {
	report := CheckReadiness(context.Background(), nil, nil)
	if !report.Ready() {
		t.Errorf("status = %q, want ready with no checks", report.Status)
	}
}

func TestCheckReadiness_timeout(t *testing.T) {
	slow := HealthCheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report := CheckReadiness(ctx, map[string]HealthChecker{"slow": slow}, nil)

	if report.Ready() {
		t.Fatal("status = ready, want not_ready")
	}
	if report.Checks["slow"].Error != context.DeadlineExceeded.Error() {
		t.Errorf("slow error = %q", report.Checks["slow"].Error)
	}
}

func TestCheckReadiness_recordsMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	CheckReadiness(context.Background(), map[string]HealthChecker{
		"submission_store":  &mockHealthChecker{},
		"idempotency_store": &mockHealthChecker{err: errors.New("down")},
	}, m)

	if v := testutil.ToFloat64(m.DependencyUp.WithLabelValues("submission_store")); v != 1 {
		t.Errorf("submission_store up = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.DependencyUp.WithLabelValues("idempotency_store")); v != 0 {
		t.Errorf("idempotency_store up = %v, want 0", v)
	}
}
