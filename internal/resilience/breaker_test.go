package resilience

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(s Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	return NewBreaker(s, WithClock(clock.now)), clock
}

func TestBreaker_startsClosed(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 3})

	if s := b.State(); s != Closed {
		t.Errorf("initial state = %v, want closed", s)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() error = %v, want nil", err)
	}
}

func TestBreaker_opensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 3})

	b.RecordFailure()
	b.RecordFailure()
	if s := b.State(); s != Closed {
		t.Errorf("state after 2 failures = %v, want closed", s)
	}
	b.RecordFailure()
	if s := b.State(); s != Open {
		t.Errorf("state after 3 failures = %v, want open", s)
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() error = %v, want ErrOpen", err)
	}
}

func TestBreaker_successResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 3})

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if s := b.State(); s != Closed {
		t.Errorf("state = %v, want closed after reset", s)
	}
}

func TestBreaker_halfOpenAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(Settings{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: time.Second})

	b.RecordFailure()
	clock.advance(999 * time.Millisecond)
	if s := b.State(); s != Open {
		t.Fatalf("state before cooldown = %v, want open", s)
	}

	clock.advance(time.Millisecond)
	if s := b.State(); s != HalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", s)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() in half-open = %v, want nil", err)
	}

	b.RecordSuccess()
	if s := b.State(); s != HalfOpen {
		t.Errorf("state after 1 probe = %v, want half-open", s)
	}
	b.RecordSuccess()
	if s := b.State(); s != Closed {
		t.Errorf("state after 2 probes = %v, want closed", s)
	}
}

func TestBreaker_halfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Settings{FailureThreshold: 1, Cooldown: time.Second})

	b.RecordFailure()
	clock.advance(time.Second)
	b.RecordFailure()

	if s := b.State(); s != Open {
		t.Errorf("state = %v, want open after half-open failure", s)
	}
}

func TestBreaker_defaults(t *testing.T) {
	b, clock := newTestBreaker(Settings{})

	for range 4 {
		b.RecordFailure()
	}
	if s := b.State(); s != Closed {
		t.Errorf("state after 4 failures = %v, want closed (default threshold 5)", s)
	}
	b.RecordFailure()
	if s := b.State(); s != Open {
		t.Errorf("state after 5 failures = %v, want open", s)
	}
	clock.advance(29 * time.Second)
	if s := b.State(); s != Open {
		t.Errorf("state at 29s = %v, want open (default cooldown 30s)", s)
	}
}

func TestBreaker_errorRateTrips(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 100, ErrorRate: 0.5, ErrorRateWindow: time.Minute})

	// Alternate so the consecutive count never builds up.
	for range 5 {
		b.RecordSuccess()
		b.RecordFailure()
	}
	if s := b.State(); s != Open {
		t.Errorf("state at 50%% over 10 calls = %v, want open", s)
	}
}

func TestBreaker_errorRateNeedsSamples(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 100, ErrorRate: 0.1, ErrorRateWindow: time.Minute})

	for range 9 {
		b.RecordFailure()
	}
	if s := b.State(); s != Closed {
		t.Errorf("state with 9 samples = %v, want closed", s)
	}
	b.RecordFailure()
	if s := b.State(); s != Open {
		t.Errorf("state with 10 samples = %v, want open", s)
	}
}

func TestBreaker_errorRateWindowResets(t *testing.T) {
	b, clock := newTestBreaker(Settings{FailureThreshold: 100, ErrorRate: 0.5, ErrorRateWindow: time.Minute})

	for range 9 {
		b.RecordFailure()
	}
	clock.advance(2 * time.Minute)
	b.RecordFailure()

	if s := b.State(); s != Closed {
		t.Errorf("state = %v, want closed after window rolled over", s)
	}
}

func TestBreaker_Do(t *testing.T) {
	b, _ := newTestBreaker(Settings{FailureThreshold: 2})
	boom := errors.New("boom")
	ignored := errors.New("not found")
	countable := func(err error) bool { return !errors.Is(err, ignored) }

	for range 3 {
		if err := b.Do(func() error { return ignored }, countable); !errors.Is(err, ignored) {
			t.Fatalf("Do() = %v, want passthrough", err)
		}
	}
	if s := b.State(); s != Closed {
		t.Fatalf("uncountable errors tripped the breaker: %v", s)
	}

	_ = b.Do(func() error { return boom }, countable)
	_ = b.Do(func() error { return boom }, countable)

	called := false
	err := b.Do(func() error { called = true; return nil }, countable)
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Do() on open breaker = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn must not run while open")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{Closed: "closed", Open: "open", HalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
