// Package ratelimit provides a per-caller fixed-window rate limiter.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluetali/beacon/internal/errors"
)

// window tracks one caller's quota for the current fixed window.
// The per-window mutex makes check-and-increment a single atomic step, so
// concurrent callers can never squeeze more than the threshold through a
// window. Contention is per caller; unrelated callers never block each other.
type window struct {
	mu    sync.Mutex
	start time.Time
	count int
}

// Snapshot is a read-only view of limiter state for metrics.
type Snapshot struct {
	Callers  int           `json:"callers"`
	Swept    int64         `json:"swept"`
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// Limiter admits up to a fixed number of requests per caller per window.
// A window that has filled stays closed until it expires; expiry replaces
// the window rather than decrementing counts.
type Limiter struct {
	requests   int
	window     time.Duration
	maxEntries int
	now        func() time.Time

	windows sync.Map // callerID -> *window
	size    atomic.Int64
	swept   atomic.Int64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Test seam.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter allowing requests per window per caller.
// The caller table is swept when it grows past maxEntries.
func New(requests int, windowLen time.Duration, maxEntries int, opts ...Option) *Limiter {
	if requests < 1 {
		requests = 30
	}
	if windowLen <= 0 {
		windowLen = 10 * time.Second
	}
	if maxEntries < 1 {
		maxEntries = 10000
	}

	l := &Limiter{
		requests:   requests,
		window:     windowLen,
		maxEntries: maxEntries,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Allow admits one request for callerID, or returns ERR_302_RATE_LIMITED
// (retryable) when the caller's current window is full.
func (l *Limiter) Allow(callerID string) error {
	now := l.now()

	v, loaded := l.windows.LoadOrStore(callerID, &window{start: now, count: 0})
	w := v.(*window)
	if !loaded {
		l.size.Add(1)
		l.maybeSweep(now)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if now.Sub(w.start) >= l.window {
		// Window expired: start a fresh one with this request counted.
		w.start = now
		w.count = 1
		return nil
	}

	if w.count >= l.requests {
		return errors.New(errors.ErrCodeRateLimited, "rate limit exceeded", nil).
			WithDetail("caller", callerID).
			WithSuggestion("Back off and retry after the window expires.")
	}

	w.count++
	return nil
}

// maybeSweep purges stale windows when the table has grown past maxEntries.
// Entries older than twice the window length cannot influence any admission
// decision and are safe to drop. Runs inline on the insert path; there is no
// background goroutine to manage.
func (l *Limiter) maybeSweep(now time.Time) {
	if l.size.Load() <= int64(l.maxEntries) {
		return
	}

	cutoff := now.Add(-2 * l.window)
	l.windows.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		stale := w.start.Before(cutoff)
		w.mu.Unlock()
		if stale {
			l.windows.Delete(key)
			l.size.Add(-1)
			l.swept.Add(1)
		}
		return true
	})
}

// Snapshot returns limiter state for metrics reporting.
func (l *Limiter) Snapshot() Snapshot {
	return Snapshot{
		Callers:  int(l.size.Load()),
		Swept:    l.swept.Load(),
		Requests: l.requests,
		Window:   l.window,
	}
}
