// Package resilience guards calls to remote dependencies.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow and Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State is the current position of a circuit breaker.
type State int

const (
	// Closed lets every call through and counts failures.
	Closed State = iota
	// Open rejects every call until the cool-down elapses.
	Open
	// HalfOpen lets probe calls through; one failure reopens.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// minErrorRateSamples is the number of calls a window needs before its
// error rate can trip the breaker.
const minErrorRateSamples = 10

// Settings configures a Breaker. Zero values take the defaults noted.
type Settings struct {
	// FailureThreshold is the consecutive failures that open the breaker (5).
	FailureThreshold int
	// SuccessThreshold is the consecutive half-open successes that close it (2).
	SuccessThreshold int
	// Cooldown is how long the breaker stays open (30s).
	Cooldown time.Duration
	// ErrorRate opens the breaker when the failure ratio within
	// ErrorRateWindow reaches it. Zero disables rate-based tripping.
	ErrorRate       float64
	ErrorRateWindow time.Duration
}

// Breaker is a three-state circuit breaker. It trips on consecutive
// failures or on the error rate within a tumbling window, and is safe for
// concurrent use.
type Breaker struct {
	mu        sync.Mutex
	settings  Settings
	now       func() time.Time
	state     State
	failures  int
	successes int
	openedAt  time.Time

	windowStart    time.Time
	windowTotal    int
	windowFailures int
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a closed breaker.
func NewBreaker(s Settings, opts ...Option) *Breaker {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold < 1 {
		s.SuccessThreshold = 2
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	b := &Breaker{settings: s, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	b.windowStart = b.now()
	return b
}

// Do runs fn unless the breaker is open and records its outcome. Failures
// for which countable returns false pass through without tripping the
// breaker; a nil countable counts every error.
func (b *Breaker) Do(fn func() error, countable func(error) bool) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	if err != nil && (countable == nil || countable(err)) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// Allow returns ErrOpen while the breaker rejects calls.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.currentState() == Open {
		return ErrOpen
	}
	return nil
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case Closed:
		b.failures = 0
		b.recordWindowCall(false)
	case HalfOpen:
		b.successes++
		if b.successes >= b.settings.SuccessThreshold {
			b.state = Closed
			b.failures = 0
			b.successes = 0
			b.resetWindow()
		}
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentState() {
	case Closed:
		b.failures++
		b.recordWindowCall(true)
		if b.failures >= b.settings.FailureThreshold || b.errorRateExceeded() {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState moves an expired Open to HalfOpen. Must be called with the
// lock held.
func (b *Breaker) currentState() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.state = HalfOpen
		b.successes = 0
	}
	return b.state
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.successes = 0
	b.resetWindow()
}

func (b *Breaker) recordWindowCall(failed bool) {
	if b.settings.ErrorRateWindow <= 0 {
		return
	}
	if b.now().Sub(b.windowStart) > b.settings.ErrorRateWindow {
		b.resetWindow()
	}
	b.windowTotal++
	if failed {
		b.windowFailures++
	}
}

func (b *Breaker) resetWindow() {
	b.windowStart = b.now()
	b.windowTotal = 0
	b.windowFailures = 0
}

func (b *Breaker) errorRateExceeded() bool {
	if b.settings.ErrorRate <= 0 || b.settings.ErrorRateWindow <= 0 {
		return false
	}
	if b.windowTotal < minErrorRateSamples {
		return false
	}
	return float64(b.windowFailures)/float64(b.windowTotal) >= b.settings.ErrorRate
}
