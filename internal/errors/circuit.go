package errors

import (
	"errors"
	"sync/atomic"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is the normal state where requests are allowed.
	StateClosed State = iota
	// StateOpen is when the circuit is tripped and requests are blocked.
	StateOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements a two-state circuit breaker over atomic counters.
// It protects the search pipeline by failing fast after a run of consecutive
// task failures.
//
// There is no half-open state. Openness is re-evaluated lazily on every read:
// the breaker reports open only while consecutiveFailures >= threshold AND
// the reset window has not elapsed since the last failure. Once the window
// elapses, the read itself clears the counter, so the breaker closes again
// without any writer involved. The open/closed decision is a pure function of
// (failures, now - lastFailure); no locks are taken on any path.
type CircuitBreaker struct {
	name        string
	threshold   int64
	resetWindow time.Duration
	now         func() time.Time

	failures    atomic.Int64
	lastFailure atomic.Int64 // unix nanos of the most recent failure
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithThreshold sets the number of consecutive failures before opening.
func WithThreshold(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.threshold = int64(n)
		}
	}
}

// WithResetWindow sets the cool-down after which an open breaker closes.
func WithResetWindow(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.resetWindow = d
		}
	}
}

// WithClock overrides the time source. Test seam.
func WithClock(now func() time.Time) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given name.
// Default: 5 consecutive failures, 30 second reset window.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        name,
		threshold:   5,
		resetWindow: 30 * time.Second,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen reports whether the breaker is currently open.
//
// Reading has a side effect: if the reset window has elapsed since the last
// failure, the counter is cleared here, completing the OPEN -> CLOSED
// transition. The clear uses compare-and-swap so a failure recorded
// concurrently is never wiped; if the swap loses, this read still reports
// closed because the window it observed had elapsed.
func (cb *CircuitBreaker) IsOpen() bool {
	failures := cb.failures.Load()
	if failures < cb.threshold {
		return false
	}

	last := time.Unix(0, cb.lastFailure.Load())
	if cb.now().Sub(last) < cb.resetWindow {
		return true
	}

	// Cool-down elapsed: lazily reset on read.
	cb.failures.CompareAndSwap(failures, 0)
	return false
}

// Allow reports whether a request should be admitted.
func (cb *CircuitBreaker) Allow() bool {
	return !cb.IsOpen()
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	if cb.IsOpen() {
		return StateOpen
	}
	return StateClosed
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int64 {
	return cb.failures.Load()
}

// RecordFailure increments the consecutive failure counter and stamps the
// failure time.
func (cb *CircuitBreaker) RecordFailure() {
	cb.failures.Add(1)
	cb.lastFailure.Store(cb.now().UnixNano())
}

// RecordSuccess zeroes the consecutive failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.failures.Store(0)
}

// Reset zeroes the consecutive failure counter.
func (cb *CircuitBreaker) Reset() {
	cb.failures.Store(0)
}

// BreakerSnapshot is a read-only view of breaker state for metrics.
type BreakerSnapshot struct {
	Name                string        `json:"name"`
	State               string        `json:"state"`
	ConsecutiveFailures int64         `json:"consecutive_failures"`
	LastFailure         time.Time     `json:"last_failure"`
	Threshold           int64         `json:"threshold"`
	ResetWindow         time.Duration `json:"reset_window"`
}

// Snapshot returns the breaker's current state for metrics reporting.
// Computing the snapshot goes through IsOpen and therefore may complete a
// pending lazy reset.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	state := cb.State()
	var last time.Time
	if nanos := cb.lastFailure.Load(); nanos > 0 {
		last = time.Unix(0, nanos)
	}
	return BreakerSnapshot{
		Name:                cb.name,
		State:               state.String(),
		ConsecutiveFailures: cb.failures.Load(),
		LastFailure:         last,
		Threshold:           cb.threshold,
		ResetWindow:         cb.resetWindow,
	}
}
