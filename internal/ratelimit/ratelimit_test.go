package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	beaconerrors "github.com/bluetali/beacon/internal/errors"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_AllowsUpToThreshold(t *testing.T) {
	l := New(3, 10*time.Second, 100)

	for i := 0; i < 3; i++ {
		assert.NoError(t, l.Allow("caller"), "request %d should be admitted", i)
	}
}

func TestLimiter_RejectsExcessWithTypedError(t *testing.T) {
	l := New(2, 10*time.Second, 100)

	require.NoError(t, l.Allow("caller"))
	require.NoError(t, l.Allow("caller"))

	err := l.Allow("caller")
	require.Error(t, err)
	assert.Equal(t, beaconerrors.ErrCodeRateLimited, beaconerrors.GetCode(err))
	assert.True(t, beaconerrors.IsRetryable(err))
}

func TestLimiter_WindowRolloverResetsCount(t *testing.T) {
	// Given: a caller that has exhausted its window
	clock := newFakeClock()
	l := New(2, 10*time.Second, 100, WithClock(clock.Now))
	require.NoError(t, l.Allow("caller"))
	require.NoError(t, l.Allow("caller"))
	require.Error(t, l.Allow("caller"))

	// When: the window expires
	clock.Advance(11 * time.Second)

	// Then: a fresh window admits again from zero
	assert.NoError(t, l.Allow("caller"))
	assert.NoError(t, l.Allow("caller"))
	assert.Error(t, l.Allow("caller"))
}

func TestLimiter_CallersAreIndependent(t *testing.T) {
	l := New(1, 10*time.Second, 100)

	require.NoError(t, l.Allow("a"))
	require.Error(t, l.Allow("a"))
	assert.NoError(t, l.Allow("b"), "caller b has its own window")
}

func TestLimiter_ClosedWindowStaysClosed(t *testing.T) {
	// A filled window must not reopen from continued rejected traffic.
	clock := newFakeClock()
	l := New(2, 10*time.Second, 100, WithClock(clock.Now))
	require.NoError(t, l.Allow("caller"))
	require.NoError(t, l.Allow("caller"))

	for i := 0; i < 20; i++ {
		clock.Advance(100 * time.Millisecond)
		assert.Error(t, l.Allow("caller"))
	}
}

func TestLimiter_ConcurrentAdmissionsNeverExceedThreshold(t *testing.T) {
	const threshold = 50
	l := New(threshold, time.Minute, 1000)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if l.Allow("hot-caller") == nil {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(threshold), admitted.Load())
}

func TestLimiter_SweepPurgesStaleEntries(t *testing.T) {
	// Given: a tiny table bound and many distinct stale callers
	clock := newFakeClock()
	l := New(5, time.Second, 10, WithClock(clock.Now))
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Allow(fmt.Sprintf("old-%d", i)))
	}

	// When: the entries go stale (older than 2x window) and churn continues
	clock.Advance(5 * time.Second)
	require.NoError(t, l.Allow("fresh"))

	// Then: the stale windows are swept
	snap := l.Snapshot()
	assert.Positive(t, snap.Swept)
	assert.LessOrEqual(t, snap.Callers, 11)
}

func TestLimiter_Snapshot(t *testing.T) {
	l := New(30, 10*time.Second, 100)
	require.NoError(t, l.Allow("a"))
	require.NoError(t, l.Allow("b"))

	snap := l.Snapshot()
	assert.Equal(t, 2, snap.Callers)
	assert.Equal(t, 30, snap.Requests)
	assert.Equal(t, 10*time.Second, snap.Window)
}
