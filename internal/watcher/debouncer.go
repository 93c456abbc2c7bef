package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces a burst of triggers into a single firing after a
// quiet period. A generator rewriting the seed file produces several
// filesystem events in quick succession; only one reload should run.
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	timer   *time.Timer
	fire    chan struct{}
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &Debouncer{
		window: window,
		fire:   make(chan struct{}, 1),
	}
}

// Trigger notes activity and (re)starts the quiet window. The firing
// happens once the window passes with no further triggers.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() {
		select {
		case d.fire <- struct{}{}:
		default:
		}
	})
}

// C returns the firing channel.
func (d *Debouncer) C() <-chan struct{} {
	return d.fire
}

// Stop cancels any pending firing. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
