package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestCache_PutGet(t *testing.T) {
	c := New[string](time.Minute, 10, 0.2)

	c.Put("k1", "v1")
	got, ok := c.Get("k1")

	require.True(t, ok)
	assert.Equal(t, "v1", got)
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	c := New[string](time.Minute, 10, 0.2)

	_, ok := c.Get("missing")

	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestCache_ExpiresAfterTTL(t *testing.T) {
	// Given: an entry older than the TTL
	clock := newFakeClock()
	c := New(time.Minute, 10, 0.2, WithClock[string](clock.Now))
	c.Put("k1", "v1")

	// When: the TTL elapses
	clock.Advance(61 * time.Second)

	// Then: the entry reads as a miss and is removed
	_, ok := c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(1), c.Stats().Expirations)
}

func TestCache_AccessDoesNotRefreshAge(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Minute, 10, 0.2, WithClock[string](clock.Now))
	c.Put("k1", "v1")

	// Repeated reads inside the TTL must not extend the entry's life
	clock.Advance(50 * time.Second)
	_, ok := c.Get("k1")
	require.True(t, ok)

	clock.Advance(15 * time.Second)
	_, ok = c.Get("k1")
	assert.False(t, ok)
}

func TestCache_EvictsOldestRatioOnOverflow(t *testing.T) {
	// Given: a full cache of 10 entries, each created one second apart
	clock := newFakeClock()
	c := New(time.Hour, 10, 0.2, WithClock[int](clock.Now))
	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%02d", i), i)
		clock.Advance(time.Second)
	}
	require.Equal(t, 10, c.Len())

	// When: one more Put crosses maxSize
	c.Put("k10", 10)

	// Then: exactly floor(10*0.2)=2 oldest entries are gone
	assert.Equal(t, 9, c.Len())
	assert.Equal(t, int64(2), c.Stats().Evictions)

	_, ok := c.Get("k00")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("k01")
	assert.False(t, ok, "second-oldest entry should be evicted")
	_, ok = c.Get("k02")
	assert.True(t, ok, "younger entries should survive")
	_, ok = c.Get("k10")
	assert.True(t, ok, "the entry that triggered eviction should survive")
}

func TestCache_SizeBoundedAfterEviction(t *testing.T) {
	clock := newFakeClock()
	c := New(time.Hour, 20, 0.25, WithClock[int](clock.Now))

	for i := 0; i < 200; i++ {
		c.Put(fmt.Sprintf("k%03d", i), i)
		clock.Advance(time.Millisecond)
		assert.LessOrEqual(t, c.Len(), 20)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New[string](time.Minute, 10, 0.2)
	c.Put("k1", "v1")

	c.Invalidate("k1")

	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestCache_InvalidateNamespace(t *testing.T) {
	c := New[string](time.Minute, 100, 0.2)
	c.Put(Key("search", "alice", "u1", false, 0, 20, nil), "full")
	c.Put(Key("typeahead", "alice", "u1", true, 0, 5, nil), "ta")

	c.InvalidateNamespace("search")

	_, ok := c.Get(Key("search", "alice", "u1", false, 0, 20, nil))
	assert.False(t, ok)
	_, ok = c.Get(Key("typeahead", "alice", "u1", true, 0, 5, nil))
	assert.True(t, ok, "other namespaces must be untouched")
}

func TestCache_Clear(t *testing.T) {
	c := New[string](time.Minute, 10, 0.2)
	c.Put("k1", "v1")
	c.Put("k2", "v2")

	c.Clear()

	assert.Equal(t, 0, c.Len())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute, 100, 0.2)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", i%50)
				c.Put(key, i)
				c.Get(key)
				if i%100 == 0 {
					c.Invalidate(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 100)
}

func TestKey_DistinguishesCallShapes(t *testing.T) {
	base := Key("search", "alice", "u1", false, 0, 20, nil)

	assert.NotEqual(t, base, Key("search", "alice", "u2", false, 0, 20, nil), "caller")
	assert.NotEqual(t, base, Key("search", "alice", "u1", true, 0, 20, nil), "typeahead flag")
	assert.NotEqual(t, base, Key("search", "alice", "u1", false, 20, 20, nil), "skip")
	assert.NotEqual(t, base, Key("search", "alice", "u1", false, 0, 5, nil), "limit")
	assert.NotEqual(t, base, Key("typeahead", "alice", "u1", false, 0, 20, nil), "namespace")
	assert.NotEqual(t, base, Key("search", "alice", "u1", false, 0, 20, []string{"people"}), "category filter")
}

func TestKey_CategoryScopeIsOrderInsensitive(t *testing.T) {
	assert.Equal(t,
		Key("search", "alice", "u1", false, 0, 20, []string{"people", "messages"}),
		Key("search", "alice", "u1", false, 0, 20, []string{"messages", "people"}))

	assert.NotEqual(t,
		Key("search", "alice", "u1", false, 0, 20, []string{"people"}),
		Key("search", "alice", "u1", false, 0, 20, []string{"messages"}))
}

func TestKey_NormalizesTermAndAnonCaller(t *testing.T) {
	assert.Equal(t,
		Key("search", "  Alice ", "", false, 0, 20, nil),
		Key("search", "alice", "anon", false, 0, 20, nil))
}
