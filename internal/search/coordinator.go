package search

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bluetali/beacon/internal/cache"
	"github.com/bluetali/beacon/internal/config"
	"github.com/bluetali/beacon/internal/errors"
	"github.com/bluetali/beacon/internal/executor"
	"github.com/bluetali/beacon/internal/ratelimit"
	"github.com/bluetali/beacon/internal/store"
)

const cacheNamespace = "search"

// Recorder observes completed searches. Implemented by the telemetry
// package; nil disables recording.
type Recorder interface {
	RecordQuery(term string, hits int, duration time.Duration, fromCache bool)
}

// Snapshot is the read-only metrics view across all engine components.
type Snapshot struct {
	Executor  executor.Metrics      `json:"executor"`
	Cache     cache.Stats           `json:"cache"`
	Breaker   errors.BreakerSnapshot `json:"breaker"`
	RateLimit ratelimit.Snapshot    `json:"rate_limit"`
}

// Coordinator orchestrates search: validate, rate limit, breaker check,
// cache lookup, fan-out across the worker pool, join under deadline,
// merge and score, cache write, breaker feedback.
//
// All shared state lives in its own thread-safe component; the coordinator
// itself holds no locks across the fan-out, so unrelated requests never
// serialize on each other.
type Coordinator struct {
	cfg       config.Config
	exec      *executor.Executor
	breaker   *errors.CircuitBreaker
	limiter   *ratelimit.Limiter
	results   *cache.Cache[Result]
	providers []Provider
	recorder  Recorder
	logger    *slog.Logger

	initialized  bool
	shuttingDown atomic.Bool
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithProviders replaces the default provider set.
func WithProviders(providers []Provider) Option {
	return func(c *Coordinator) { c.providers = providers }
}

// WithRecorder attaches a query recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// New builds a Coordinator and its owned components from config. The store
// is injected; everything else (pool, breaker, limiter, cache) is created
// here, once, at process start.
func New(cfg config.Config, st store.EntityStore, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	if st == nil {
		return nil, fmt.Errorf("search: nil store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "search")

	breaker := errors.NewCircuitBreaker("search",
		errors.WithThreshold(cfg.Breaker.Threshold),
		errors.WithResetWindow(cfg.Breaker.ResetWindowDuration()),
	)

	exec, err := executor.New(cfg.Executor, breaker, logger)
	if err != nil {
		return nil, err
	}

	retry := errors.RetryConfig{
		MaxRetries:   cfg.Search.MaxRetries,
		InitialDelay: cfg.Search.RetryDelayDuration(),
		MaxDelay:     8 * cfg.Search.RetryDelayDuration(),
		Multiplier:   2.0,
	}

	c := &Coordinator{
		cfg:     cfg,
		exec:    exec,
		breaker: breaker,
		limiter: ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.WindowDuration(), cfg.RateLimit.MaxEntries),
		results: cache.New[Result](cfg.Cache.TTLDuration(), cfg.Cache.MaxSize, cfg.Cache.EvictionRatio),
		logger:  logger,
	}
	c.providers = NewProviders(st, retry)

	for _, opt := range opts {
		opt(c)
	}
	if len(c.providers) == 0 {
		_ = exec.Shutdown(context.Background())
		return nil, fmt.Errorf("search: no providers registered")
	}

	c.initialized = true
	return c, nil
}

// Search runs a full search for the request.
func (c *Coordinator) Search(ctx context.Context, req Request) (res *Result, err error) {
	// Outermost boundary: a panic anywhere below must never reach the
	// caller unstructured.
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("search panicked", "panic", fmt.Sprint(r), "term", req.Term)
			res = nil
			err = errors.New(errors.ErrCodeUnknown, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	req.Typeahead = false
	return c.run(ctx, req, c.cfg.Search.DeadlineDuration())
}

// Typeahead runs a short-deadline prefix search with the fixed typeahead
// limit.
func (c *Coordinator) Typeahead(ctx context.Context, term, callerID string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("typeahead panicked", "panic", fmt.Sprint(r), "term", term)
			res = nil
			err = errors.New(errors.ErrCodeUnknown, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	req := Request{
		Term:      term,
		CallerID:  callerID,
		Limit:     c.cfg.Search.TypeaheadLimit,
		Typeahead: true,
	}
	return c.run(ctx, req, c.cfg.Search.TypeaheadDeadlineDuration())
}

// run is the shared orchestration path.
func (c *Coordinator) run(ctx context.Context, req Request, deadline time.Duration) (*Result, error) {
	start := time.Now()

	req.Term = strings.TrimSpace(req.Term)
	if len(req.Term) < c.cfg.Search.MinTermLength {
		return emptyResult(req.Term, req.Typeahead), nil
	}
	c.sanitize(&req)

	caller := req.CallerID
	if caller == "" {
		caller = cache.AnonCaller
	}
	if err := c.limiter.Allow(caller); err != nil {
		return nil, err
	}

	if c.shuttingDown.Load() {
		return nil, errors.New(errors.ErrCodePoolShutdown, "engine is shutting down", nil)
	}
	if c.breaker.IsOpen() {
		return nil, errors.New(errors.ErrCodePoolExhausted,
			"circuit breaker open: too many recent failures", nil).
			WithSuggestion("wait for the reset window to elapse and retry")
	}

	key := cache.Key(cacheNamespace, req.Term, req.CallerID, req.Typeahead, req.Skip, req.Limit, categoryNames(req.Categories))
	if cached, ok := c.results.Get(key); ok {
		cached.FromCache = true
		cached.RequestID = uuid.NewString()
		cached.Duration = time.Since(start)
		c.record(req.Term, cached.TotalCount, cached.Duration, true)
		return &cached, nil
	}

	result, err := c.fanOut(ctx, req, deadline)
	if err != nil {
		return nil, err
	}

	result.RequestID = uuid.NewString()
	result.Duration = time.Since(start)

	if result.Complete {
		c.breaker.Reset()
		c.results.Put(key, *result)
	}

	c.logger.Debug("search completed",
		"request_id", result.RequestID,
		"term", req.Term,
		"caller", caller,
		"typeahead", req.Typeahead,
		"total", result.TotalCount,
		"complete", result.Complete,
		"duration_ms", result.Duration.Milliseconds())
	c.record(req.Term, result.TotalCount, result.Duration, false)

	return result, nil
}

// sanitize clamps pagination to configured bounds.
func (c *Coordinator) sanitize(req *Request) {
	if req.Skip < 0 {
		req.Skip = 0
	}
	if req.Limit <= 0 {
		req.Limit = c.cfg.Search.DefaultLimit
	}
	if req.Limit > c.cfg.Search.MaxLimit {
		req.Limit = c.cfg.Search.MaxLimit
	}
}

// categoryNames flattens a category filter for the cache key.
func categoryNames(categories []store.Category) []string {
	if len(categories) == 0 {
		return nil
	}
	names := make([]string, len(categories))
	for i, cat := range categories {
		names[i] = string(cat)
	}
	return names
}

// selected returns the providers the request's category filter admits, in
// registration order.
func (c *Coordinator) selected(req Request) []Provider {
	if len(req.Categories) == 0 {
		return c.providers
	}
	want := make(map[store.Category]bool, len(req.Categories))
	for _, cat := range req.Categories {
		want[cat] = true
	}
	var out []Provider
	for _, p := range c.providers {
		if want[p.Category()] {
			out = append(out, p)
		}
	}
	return out
}

// fanOut launches one task per provider and joins under the deadline.
// Each task publishes its items through an atomic slot, so a leg that is
// abandoned at the deadline can finish (and store) without racing the
// merge; the merge only reads slots of legs the join saw complete.
func (c *Coordinator) fanOut(ctx context.Context, req Request, deadline time.Duration) (*Result, error) {
	providers := c.selected(req)

	query := store.Query{
		Term:     req.Term,
		CallerID: req.CallerID,
		Prefix:   req.Typeahead,
		Skip:     req.Skip,
		Limit:    req.Limit,
	}

	slots := make([]atomic.Pointer[[]Item], len(providers))
	tasks := make([]executor.Task, len(providers))
	for i, p := range providers {
		i, p := i, p
		tasks[i] = executor.Task{
			Name: string(p.Category()),
			Run: func(taskCtx context.Context) error {
				items, err := p.Search(taskCtx, query)
				if err != nil {
					return err
				}
				slots[i].Store(&items)
				return nil
			},
		}
	}

	outcomes := c.exec.ExecuteParallel(ctx, tasks, deadline)

	result := &Result{
		Term:       req.Term,
		Skip:       req.Skip,
		Limit:      req.Limit,
		Typeahead:  req.Typeahead,
		Categories: make([]CategoryResult, len(providers)),
		Complete:   true,
	}

	var legErrs []error
	for i, p := range providers {
		cr := CategoryResult{
			Category: p.Category(),
			Items:    []Item{},
			Duration: outcomes[i].Duration,
		}
		switch {
		case !outcomes[i].Completed:
			result.Complete = false
			cr.Error = "deadline exceeded"
		case outcomes[i].Err != nil:
			result.Complete = false
			cr.Error = outcomes[i].Err.Error()
			legErrs = append(legErrs, outcomes[i].Err)
			c.logger.Warn("category search failed",
				"category", cr.Category, "error", outcomes[i].Err)
		default:
			cr.Complete = true
			if items := slots[i].Load(); items != nil {
				cr.Items = *items
			}
			cr.Count = len(cr.Items)
		}
		result.Categories[i] = cr
		result.TotalCount += cr.Count
	}

	if len(legErrs) == len(providers) && len(legErrs) > 0 {
		return nil, errors.New(errors.ErrCodeSearchFailed,
			"all category searches failed", goerrors.Join(legErrs...))
	}

	combined := make([]Item, 0, result.TotalCount)
	for _, cr := range result.Categories {
		combined = append(combined, cr.Items...)
	}
	sortByScore(combined)
	result.Combined = combined

	return result, nil
}

// Health reports whether the engine can serve searches right now.
func (c *Coordinator) Health() bool {
	return c.initialized &&
		!c.shuttingDown.Load() &&
		c.exec.IsRunning() &&
		!c.breaker.IsOpen()
}

// Metrics returns a point-in-time snapshot of all components. Reading it
// has no side effects.
func (c *Coordinator) Metrics() Snapshot {
	return Snapshot{
		Executor:  c.exec.Metrics(),
		Cache:     c.results.Stats(),
		Breaker:   c.breaker.Snapshot(),
		RateLimit: c.limiter.Snapshot(),
	}
}

// InvalidateCache drops every cached search result. Called when the
// underlying data changes, e.g. after a reseed.
func (c *Coordinator) InvalidateCache() {
	c.results.InvalidateNamespace(cacheNamespace)
}

// Close stops accepting work and drains the pool once. Safe to call from
// multiple shutdown paths.
func (c *Coordinator) Close(ctx context.Context) error {
	if !c.shuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	return c.exec.Shutdown(ctx)
}

func (c *Coordinator) record(term string, hits int, duration time.Duration, fromCache bool) {
	if c.recorder != nil {
		c.recorder.RecordQuery(term, hits, duration, fromCache)
	}
}
