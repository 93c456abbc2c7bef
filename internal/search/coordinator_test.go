package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluetali/beacon/internal/config"
	beaconerrors "github.com/bluetali/beacon/internal/errors"
	"github.com/bluetali/beacon/internal/store"
)

// stubStore satisfies the store interface for coordinator tests that
// inject fake providers and never touch it.
type stubStore struct{}

func (stubStore) SearchPeople(context.Context, store.Query) ([]store.Person, error) {
	return nil, nil
}
func (stubStore) SearchConversations(context.Context, store.Query) ([]store.Conversation, error) {
	return nil, nil
}
func (stubStore) SearchMessages(context.Context, store.Query) ([]store.Message, error) {
	return nil, nil
}
func (stubStore) Seed(context.Context, string) (store.SeedCounts, error) {
	return store.SeedCounts{}, nil
}
func (stubStore) Counts(context.Context) (store.Counts, error) { return store.Counts{}, nil }
func (stubStore) Close() error                                 { return nil }

// fakeProvider is a scripted category leg.
type fakeProvider struct {
	category  store.Category
	items     []Item
	delay     time.Duration
	failing   atomic.Bool
	calls     atomic.Int64
	lastQuery atomic.Pointer[store.Query]
}

func (f *fakeProvider) Category() store.Category { return f.category }

func (f *fakeProvider) Search(ctx context.Context, q store.Query) ([]Item, error) {
	f.calls.Add(1)
	f.lastQuery.Store(&q)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failing.Load() {
		return nil, beaconerrors.DatastoreError("scripted failure", nil)
	}
	return f.items, nil
}

func testConfig() config.Config {
	cfg := config.NewConfig()
	cfg.Executor.CoreWorkers = 2
	cfg.Executor.MaxWorkers = 4
	cfg.Executor.QueueCapacity = 16
	cfg.Executor.AdmissionWait = "100ms"
	cfg.Executor.ShutdownTimeout = "500ms"
	cfg.Breaker.Threshold = 3
	cfg.Breaker.ResetWindow = "80ms"
	cfg.RateLimit.Requests = 100
	cfg.RateLimit.Window = "1s"
	cfg.Search.Deadline = "500ms"
	cfg.Search.TypeaheadDeadline = "150ms"
	cfg.Search.MaxRetries = 0
	cfg.Search.RetryDelay = "5ms"
	return *cfg
}

func newTestCoordinator(t *testing.T, cfg config.Config, providers ...Provider) *Coordinator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	opts := []Option{}
	if len(providers) > 0 {
		opts = append(opts, WithProviders(providers))
	}
	c, err := New(cfg, stubStore{}, logger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestSearch_ShortTermReturnsEmptyNotError(t *testing.T) {
	p := &fakeProvider{category: store.CategoryPeople}
	c := newTestCoordinator(t, testConfig(), p)

	for _, term := range []string{"", "a", "   a   "} {
		res, err := c.Search(context.Background(), Request{Term: term})

		require.NoError(t, err, "term %q", term)
		assert.Equal(t, 0, res.TotalCount)
		assert.True(t, res.Complete)
		assert.Empty(t, res.Combined)
	}
	assert.Equal(t, int64(0), p.calls.Load(), "no lookup should run for short terms")
}

func TestSearch_MergesAndSortsByScore(t *testing.T) {
	// Given two categories whose items interleave by score
	people := &fakeProvider{category: store.CategoryPeople, items: []Item{
		{ID: "p1", Category: store.CategoryPeople, Score: 90},
		{ID: "p2", Category: store.CategoryPeople, Score: 40},
	}}
	convs := &fakeProvider{category: store.CategoryConversations, items: []Item{
		{ID: "c1", Category: store.CategoryConversations, Score: 50},
	}}
	c := newTestCoordinator(t, testConfig(), people, convs)

	// When searching
	res, err := c.Search(context.Background(), Request{Term: "al"})

	// Then the combined list is score-descending across categories
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.False(t, res.FromCache)
	assert.Equal(t, 3, res.TotalCount)
	require.Len(t, res.Combined, 3)
	assert.Equal(t, "p1", res.Combined[0].ID)
	assert.Equal(t, "c1", res.Combined[1].ID)
	assert.Equal(t, "p2", res.Combined[2].ID)

	require.Len(t, res.Categories, 2)
	assert.Equal(t, store.CategoryPeople, res.Categories[0].Category)
	assert.Equal(t, 2, res.Categories[0].Count)
	assert.Equal(t, 1, res.Categories[1].Count)
	assert.NotEmpty(t, res.RequestID)
}

func TestSearch_SecondIdenticalRequestServedFromCache(t *testing.T) {
	p := &fakeProvider{category: store.CategoryPeople, items: []Item{
		{ID: "p1", Score: 80},
	}}
	c := newTestCoordinator(t, testConfig(), p)
	req := Request{Term: "alice", CallerID: "u1"}

	first, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.FromCache)

	second, err := c.Search(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.TotalCount, second.TotalCount)
	assert.Equal(t, first.Combined, second.Combined)
	assert.Equal(t, int64(1), p.calls.Load(), "cache hit must not re-invoke the lookup")
}

func TestSearch_CategoryFilterDoesNotShareCacheEntry(t *testing.T) {
	// Given two categories with one hit each
	people := &fakeProvider{category: store.CategoryPeople, items: []Item{
		{ID: "p1", Category: store.CategoryPeople, Score: 70},
	}}
	convs := &fakeProvider{category: store.CategoryConversations, items: []Item{
		{ID: "c1", Category: store.CategoryConversations, Score: 30},
	}}
	c := newTestCoordinator(t, testConfig(), people, convs)
	ctx := context.Background()

	// When a people-only search runs first
	filtered, err := c.Search(ctx, Request{Term: "alpha", Categories: []store.Category{store.CategoryPeople}})
	require.NoError(t, err)
	require.Equal(t, 1, filtered.TotalCount)

	// Then an unfiltered search for the same term must not reuse its entry
	full, err := c.Search(ctx, Request{Term: "alpha"})
	require.NoError(t, err)
	assert.False(t, full.FromCache)
	assert.Equal(t, 2, full.TotalCount)
	require.Len(t, full.Categories, 2)
	assert.Equal(t, int64(1), convs.calls.Load(), "the unfiltered search must fan out to every category")

	// And the filtered entry still serves repeats of the filtered shape
	again, err := c.Search(ctx, Request{Term: "alpha", Categories: []store.Category{store.CategoryPeople}})
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Equal(t, 1, again.TotalCount)
}

func TestSearch_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Requests = 2

	p := &fakeProvider{category: store.CategoryPeople}
	c := newTestCoordinator(t, cfg, p)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.Search(ctx, Request{Term: "alice", CallerID: "greedy"})
		require.NoError(t, err)
	}

	_, err := c.Search(ctx, Request{Term: "alice", CallerID: "greedy"})
	var be *beaconerrors.BeaconError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, beaconerrors.ErrCodeRateLimited, be.Code)
	assert.True(t, be.Retryable)

	// Other callers are unaffected
	_, err = c.Search(ctx, Request{Term: "alice", CallerID: "patient"})
	require.NoError(t, err)
}

func TestSearch_DeadlinePartialResultNotCached(t *testing.T) {
	cfg := testConfig()
	cfg.Search.Deadline = "100ms"

	fast := &fakeProvider{category: store.CategoryPeople, items: []Item{
		{ID: "p1", Score: 70},
	}}
	slow := &fakeProvider{category: store.CategoryConversations, delay: 2 * time.Second}
	c := newTestCoordinator(t, cfg, fast, slow)
	req := Request{Term: "alice"}

	res, err := c.Search(context.Background(), req)

	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, 1, res.TotalCount)
	require.Len(t, res.Categories, 2)
	assert.True(t, res.Categories[0].Complete)
	assert.Len(t, res.Categories[0].Items, 1)
	assert.False(t, res.Categories[1].Complete)
	assert.Empty(t, res.Categories[1].Items)

	// The partial result must not be served from cache later
	again, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, again.FromCache)
}

func TestSearch_SingleLegFailureReturnsPartial(t *testing.T) {
	good := &fakeProvider{category: store.CategoryPeople, items: []Item{{ID: "p1", Score: 60}}}
	bad := &fakeProvider{category: store.CategoryConversations}
	bad.failing.Store(true)
	c := newTestCoordinator(t, testConfig(), good, bad)

	res, err := c.Search(context.Background(), Request{Term: "alice"})

	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, 1, res.TotalCount)
	assert.NotEmpty(t, res.Categories[1].Error)
	assert.GreaterOrEqual(t, c.Metrics().Breaker.ConsecutiveFailures, int64(1))
}

func TestSearch_AllLegsFailedSurfacesTypedError(t *testing.T) {
	bad := &fakeProvider{category: store.CategoryPeople}
	bad.failing.Store(true)
	c := newTestCoordinator(t, testConfig(), bad)

	_, err := c.Search(context.Background(), Request{Term: "alice"})

	var be *beaconerrors.BeaconError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, beaconerrors.ErrCodeSearchFailed, be.Code)
}

func TestSearch_BreakerOpensAfterThresholdAndRecovers(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker.Threshold = 2
	cfg.Breaker.ResetWindow = "80ms"

	p := &fakeProvider{category: store.CategoryPeople, items: []Item{{ID: "p1", Score: 10}}}
	p.failing.Store(true)
	c := newTestCoordinator(t, cfg, p)
	ctx := context.Background()

	// Two failing searches trip the breaker
	for i := 0; i < 2; i++ {
		_, err := c.Search(ctx, Request{Term: fmt.Sprintf("term-%d", i)})
		require.Error(t, err)
	}
	assert.False(t, c.Health())

	// While open, searches fail fast without touching the provider
	before := p.calls.Load()
	_, err := c.Search(ctx, Request{Term: "blocked"})
	var be *beaconerrors.BeaconError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, beaconerrors.ErrCodePoolExhausted, be.Code)
	assert.True(t, be.Retryable)
	assert.Equal(t, before, p.calls.Load())

	// After the reset window a successful search restores health
	time.Sleep(120 * time.Millisecond)
	p.failing.Store(false)

	res, err := c.Search(ctx, Request{Term: "recovered"})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.True(t, c.Health())
}

func TestTypeahead_PrefixQueryWithFixedLimit(t *testing.T) {
	p := &fakeProvider{category: store.CategoryPeople}
	c := newTestCoordinator(t, testConfig(), p)

	res, err := c.Typeahead(context.Background(), "al", "u1")

	require.NoError(t, err)
	assert.True(t, res.Typeahead)

	q := p.lastQuery.Load()
	require.NotNil(t, q)
	assert.True(t, q.Prefix)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, 0, q.Skip)
	assert.Equal(t, "u1", q.CallerID)
}

func TestSearch_CategoryFilter(t *testing.T) {
	people := &fakeProvider{category: store.CategoryPeople}
	convs := &fakeProvider{category: store.CategoryConversations}
	c := newTestCoordinator(t, testConfig(), people, convs)

	res, err := c.Search(context.Background(), Request{
		Term:       "alice",
		Categories: []store.Category{store.CategoryConversations},
	})

	require.NoError(t, err)
	require.Len(t, res.Categories, 1)
	assert.Equal(t, store.CategoryConversations, res.Categories[0].Category)
	assert.Equal(t, int64(0), people.calls.Load())
	assert.Equal(t, int64(1), convs.calls.Load())
}

func TestSearch_SanitizesPagination(t *testing.T) {
	p := &fakeProvider{category: store.CategoryPeople}
	c := newTestCoordinator(t, testConfig(), p)
	ctx := context.Background()

	_, err := c.Search(ctx, Request{Term: "alice", Skip: -5, Limit: 0})
	require.NoError(t, err)
	q := p.lastQuery.Load()
	assert.Equal(t, 0, q.Skip)
	assert.Equal(t, 20, q.Limit)

	_, err = c.Search(ctx, Request{Term: "bob", Limit: 9999})
	require.NoError(t, err)
	q = p.lastQuery.Load()
	assert.Equal(t, 100, q.Limit)
}

func TestCoordinator_CloseStopsSearches(t *testing.T) {
	p := &fakeProvider{category: store.CategoryPeople}
	c := newTestCoordinator(t, testConfig(), p)

	assert.True(t, c.Health())
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()), "close is idempotent")
	assert.False(t, c.Health())

	_, err := c.Search(context.Background(), Request{Term: "alice"})
	var be *beaconerrors.BeaconError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, beaconerrors.ErrCodePoolShutdown, be.Code)
}

func TestCoordinator_MetricsSnapshot(t *testing.T) {
	p := &fakeProvider{category: store.CategoryPeople, items: []Item{{ID: "p1", Score: 10}}}
	c := newTestCoordinator(t, testConfig(), p)
	ctx := context.Background()

	_, err := c.Search(ctx, Request{Term: "alice"})
	require.NoError(t, err)
	_, err = c.Search(ctx, Request{Term: "alice"})
	require.NoError(t, err)

	snap := c.Metrics()
	assert.Equal(t, int64(1), snap.Cache.Hits)
	assert.GreaterOrEqual(t, snap.Cache.Misses, int64(1))
	assert.Equal(t, 4, snap.Executor.Capacity)
	assert.Equal(t, int64(0), snap.Breaker.ConsecutiveFailures)
}

func TestCoordinator_InvalidateCacheForcesRefetch(t *testing.T) {
	p := &fakeProvider{category: store.CategoryPeople, items: []Item{{ID: "p1", Score: 10}}}
	c := newTestCoordinator(t, testConfig(), p)
	ctx := context.Background()
	req := Request{Term: "alice"}

	_, err := c.Search(ctx, req)
	require.NoError(t, err)

	c.InvalidateCache()

	res, err := c.Search(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, int64(2), p.calls.Load())
}

func TestProviders_ScoreRealStoreResults(t *testing.T) {
	st, err := store.NewSQLiteStore("", false, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	seedProviderFixture(t, st)

	providers := NewProviders(st, beaconerrors.DefaultRetryConfig())
	require.Len(t, providers, 3)
	assert.Equal(t, store.CategoryPeople, providers[0].Category())

	items, err := providers[0].Search(context.Background(), store.Query{Term: "alice", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, items)

	// Exact username match outranks the substring hit
	assert.Equal(t, "u1", items[0].ID)
	assert.Greater(t, items[0].Score, 0.0)
	assert.Contains(t, items[0].Highlights["username"], "<mark>")
	for i := 1; i < len(items); i++ {
		assert.LessOrEqual(t, items[i].Score, items[i-1].Score)
	}
}

func seedProviderFixture(t *testing.T, st *store.SQLiteStore) {
	t.Helper()
	seedJSON := `{
		"people": [
			{"id": "u1", "username": "alice", "display_name": "Alice Smith", "email": "alice@example.com", "active": true},
			{"id": "u2", "username": "malice-fan", "display_name": "Mal Icet", "email": "mal@example.com", "active": true}
		]
	}`
	path := t.TempDir() + "/seed.json"
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o644))
	_, err := st.Seed(context.Background(), path)
	require.NoError(t, err)
}
