// Package health runs named readiness checks over the engine and its
// environment. Used by the status command and by startup validation.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bluetali/beacon/internal/store"
)

// Status classifies a check outcome.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of a single check.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r Result) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Engine is the coordinator surface the checker reads.
type Engine interface {
	Health() bool
}

// Checker runs the full check set.
type Checker struct {
	engine  Engine
	store   store.EntityStore
	dataDir string
}

// Option configures a Checker.
type Option func(*Checker)

// WithEngine attaches the search coordinator.
func WithEngine(e Engine) Option {
	return func(c *Checker) { c.engine = e }
}

// WithStore attaches the entity store.
func WithStore(s store.EntityStore) Option {
	return func(c *Checker) { c.store = s }
}

// WithDataDir sets the directory checked for writability and disk space.
func WithDataDir(dir string) Option {
	return func(c *Checker) { c.dataDir = dir }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every configured check.
func (c *Checker) RunAll(ctx context.Context) []Result {
	var results []Result

	if c.dataDir != "" {
		results = append(results, c.CheckDataDir())
		results = append(results, c.CheckDiskSpace(c.dataDir))
	}
	if c.store != nil {
		results = append(results, c.CheckStore(ctx))
	}
	if c.engine != nil {
		results = append(results, c.CheckEngine())
	}

	return results
}

// HasCriticalFailures reports whether any required check failed.
func (c *Checker) HasCriticalFailures(results []Result) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// CheckDataDir verifies the data directory exists and is writable.
func (c *Checker) CheckDataDir() Result {
	result := Result{Name: "data_dir", Required: true}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", c.dataDir, err)
		return result
	}

	probe := filepath.Join(c.dataDir, ".write-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not writable: %v", c.dataDir, err)
		return result
	}
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = c.dataDir + " is writable"
	return result
}

// CheckStore verifies the entity store answers a count query.
func (c *Checker) CheckStore(ctx context.Context) Result {
	result := Result{Name: "store", Required: true}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	counts, err := c.store.Counts(queryCtx)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("store unreachable: %v", err)
		return result
	}

	if counts.Total() == 0 {
		result.Status = StatusWarn
		result.Message = "store is empty; run 'beacon seed' to load data"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d people, %d conversations, %d messages",
		counts.People, counts.Conversations, counts.Messages)
	return result
}

// CheckEngine reports the coordinator's readiness: running pool, closed
// breaker, not shutting down.
func (c *Checker) CheckEngine() Result {
	result := Result{Name: "engine", Required: true}

	if !c.engine.Health() {
		result.Status = StatusFail
		result.Message = "engine unhealthy: pool stopped, shutting down, or breaker open"
		return result
	}

	result.Status = StatusPass
	result.Message = "engine ready"
	return result
}
