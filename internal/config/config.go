package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Beacon configuration.
// Durations are stored as strings ("500ms", "30s") and parsed on access;
// Validate rejects any value time.ParseDuration cannot handle.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Executor  ExecutorConfig  `yaml:"executor" json:"executor"`
	Breaker   BreakerConfig   `yaml:"breaker" json:"breaker"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Search    SearchConfig    `yaml:"search" json:"search"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// ExecutorConfig configures the bounded worker pool.
type ExecutorConfig struct {
	// CoreWorkers is the number of workers kept ready at all times.
	CoreWorkers int `yaml:"core_workers" json:"core_workers"`

	// MaxWorkers is the hard cap on concurrent workers.
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`

	// QueueCapacity bounds the number of tasks waiting for a worker.
	QueueCapacity int `yaml:"queue_capacity" json:"queue_capacity"`

	// AdmissionWait is how long a submitter blocks on a full queue
	// before the task is rejected.
	AdmissionWait string `yaml:"admission_wait" json:"admission_wait"`

	// ShutdownTimeout bounds the graceful drain during Shutdown.
	ShutdownTimeout string `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// Threshold is the consecutive-failure count that opens the breaker.
	Threshold int `yaml:"threshold" json:"threshold"`

	// ResetWindow is the cool-down after which an open breaker closes.
	ResetWindow string `yaml:"reset_window" json:"reset_window"`
}

// RateLimitConfig configures the per-caller fixed-window rate limiter.
type RateLimitConfig struct {
	// Requests is the number of requests allowed per caller per window.
	Requests int `yaml:"requests" json:"requests"`

	// Window is the fixed window length.
	Window string `yaml:"window" json:"window"`

	// MaxEntries triggers a sweep of stale windows when the caller
	// table grows past it.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// CacheConfig configures the TTL result cache.
type CacheConfig struct {
	// TTL is how long a cached result stays servable.
	TTL string `yaml:"ttl" json:"ttl"`

	// MaxSize is the entry count that triggers eviction.
	MaxSize int `yaml:"max_size" json:"max_size"`

	// EvictionRatio is the fraction of oldest entries removed when
	// MaxSize is exceeded (0.0-1.0).
	EvictionRatio float64 `yaml:"eviction_ratio" json:"eviction_ratio"`
}

// SearchConfig configures coordinator behavior and pagination bounds.
type SearchConfig struct {
	// Deadline bounds a full search fan-out.
	Deadline string `yaml:"deadline" json:"deadline"`

	// TypeaheadDeadline bounds a typeahead fan-out. Kept short so
	// live-as-you-type feedback stays responsive.
	TypeaheadDeadline string `yaml:"typeahead_deadline" json:"typeahead_deadline"`

	// MinTermLength is the minimum trimmed term length; shorter terms
	// return an empty result rather than an error.
	MinTermLength int `yaml:"min_term_length" json:"min_term_length"`

	// DefaultLimit is used when a request carries no limit.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// MaxLimit clamps caller-supplied limits.
	MaxLimit int `yaml:"max_limit" json:"max_limit"`

	// TypeaheadLimit is the fixed result count for typeahead.
	TypeaheadLimit int `yaml:"typeahead_limit" json:"typeahead_limit"`

	// MaxRetries is the per-provider retry budget for retryable
	// store errors.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryDelay is the initial backoff between retries.
	RetryDelay string `yaml:"retry_delay" json:"retry_delay"`
}

// StoreConfig configures the entity store.
type StoreConfig struct {
	// Backend selects the query strategy.
	// Options: "fts5" (default, SQLite full-text index), "like"
	// (case-insensitive pattern fallback), "bleve" (Bleve index).
	Backend string `yaml:"backend" json:"backend"`

	// Path is the SQLite database file. Empty means ~/.beacon/beacon.db.
	Path string `yaml:"path" json:"path"`

	// SeedPath is the JSON seed file loaded by `beacon seed`.
	SeedPath string `yaml:"seed_path" json:"seed_path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`

	// Dir is the log directory. Empty means ~/.beacon/logs.
	Dir string `yaml:"dir" json:"dir"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Executor: ExecutorConfig{
			CoreWorkers:     4,
			MaxWorkers:      16,
			QueueCapacity:   200,
			AdmissionWait:   "500ms",
			ShutdownTimeout: "60s",
		},
		Breaker: BreakerConfig{
			Threshold:   5,
			ResetWindow: "30s",
		},
		RateLimit: RateLimitConfig{
			Requests:   30,
			Window:     "10s",
			MaxEntries: 10000,
		},
		Cache: CacheConfig{
			TTL:           "30s",
			MaxSize:       5000,
			EvictionRatio: 0.2,
		},
		Search: SearchConfig{
			Deadline:          "5s",
			TypeaheadDeadline: "1s",
			MinTermLength:     2,
			DefaultLimit:      20,
			MaxLimit:          100,
			TypeaheadLimit:    5,
			MaxRetries:        2,
			RetryDelay:        "50ms",
		},
		Store: StoreConfig{
			Backend: "fts5",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns the Beacon data directory (~/.beacon).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".beacon")
	}
	return filepath.Join(home, ".beacon")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/beacon/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/beacon/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "beacon", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "beacon", "config.yaml")
	}
	return filepath.Join(home, ".config", "beacon", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/beacon/config.yaml)
//  3. Project config (.beacon.yaml in the working directory)
//  4. Environment variables (BEACON_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .beacon.yaml or .beacon.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".beacon.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".beacon.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Executor
	if other.Executor.CoreWorkers != 0 {
		c.Executor.CoreWorkers = other.Executor.CoreWorkers
	}
	if other.Executor.MaxWorkers != 0 {
		c.Executor.MaxWorkers = other.Executor.MaxWorkers
	}
	if other.Executor.QueueCapacity != 0 {
		c.Executor.QueueCapacity = other.Executor.QueueCapacity
	}
	if other.Executor.AdmissionWait != "" {
		c.Executor.AdmissionWait = other.Executor.AdmissionWait
	}
	if other.Executor.ShutdownTimeout != "" {
		c.Executor.ShutdownTimeout = other.Executor.ShutdownTimeout
	}

	// Breaker
	if other.Breaker.Threshold != 0 {
		c.Breaker.Threshold = other.Breaker.Threshold
	}
	if other.Breaker.ResetWindow != "" {
		c.Breaker.ResetWindow = other.Breaker.ResetWindow
	}

	// Rate limiter
	if other.RateLimit.Requests != 0 {
		c.RateLimit.Requests = other.RateLimit.Requests
	}
	if other.RateLimit.Window != "" {
		c.RateLimit.Window = other.RateLimit.Window
	}
	if other.RateLimit.MaxEntries != 0 {
		c.RateLimit.MaxEntries = other.RateLimit.MaxEntries
	}

	// Cache
	if other.Cache.TTL != "" {
		c.Cache.TTL = other.Cache.TTL
	}
	if other.Cache.MaxSize != 0 {
		c.Cache.MaxSize = other.Cache.MaxSize
	}
	if other.Cache.EvictionRatio != 0 {
		c.Cache.EvictionRatio = other.Cache.EvictionRatio
	}

	// Search
	if other.Search.Deadline != "" {
		c.Search.Deadline = other.Search.Deadline
	}
	if other.Search.TypeaheadDeadline != "" {
		c.Search.TypeaheadDeadline = other.Search.TypeaheadDeadline
	}
	if other.Search.MinTermLength != 0 {
		c.Search.MinTermLength = other.Search.MinTermLength
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.TypeaheadLimit != 0 {
		c.Search.TypeaheadLimit = other.Search.TypeaheadLimit
	}
	if other.Search.MaxRetries != 0 {
		c.Search.MaxRetries = other.Search.MaxRetries
	}
	if other.Search.RetryDelay != "" {
		c.Search.RetryDelay = other.Search.RetryDelay
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.SeedPath != "" {
		c.Store.SeedPath = other.Store.SeedPath
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Dir != "" {
		c.Logging.Dir = other.Logging.Dir
	}
}

// applyEnvOverrides applies BEACON_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BEACON_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("BEACON_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("BEACON_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BEACON_SEARCH_DEADLINE"); v != "" {
		c.Search.Deadline = v
	}
	if v := os.Getenv("BEACON_CACHE_TTL"); v != "" {
		c.Cache.TTL = v
	}
	if v := os.Getenv("BEACON_RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.Requests = n
		}
	}
	if v := os.Getenv("BEACON_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Breaker.Threshold = n
		}
	}
	if v := os.Getenv("BEACON_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Executor.MaxWorkers = n
		}
	}
}

// Duration accessors. Validate guarantees these parse, so failures here
// fall back to defaults rather than erroring at every call site.

func (c *ExecutorConfig) AdmissionWaitDuration() time.Duration {
	return parseDurationOr(c.AdmissionWait, 500*time.Millisecond)
}

func (c *ExecutorConfig) ShutdownTimeoutDuration() time.Duration {
	return parseDurationOr(c.ShutdownTimeout, 60*time.Second)
}

func (c *BreakerConfig) ResetWindowDuration() time.Duration {
	return parseDurationOr(c.ResetWindow, 30*time.Second)
}

func (c *RateLimitConfig) WindowDuration() time.Duration {
	return parseDurationOr(c.Window, 10*time.Second)
}

func (c *CacheConfig) TTLDuration() time.Duration {
	return parseDurationOr(c.TTL, 30*time.Second)
}

func (c *SearchConfig) DeadlineDuration() time.Duration {
	return parseDurationOr(c.Deadline, 5*time.Second)
}

func (c *SearchConfig) TypeaheadDeadlineDuration() time.Duration {
	return parseDurationOr(c.TypeaheadDeadline, time.Second)
}

func (c *SearchConfig) RetryDelayDuration() time.Duration {
	return parseDurationOr(c.RetryDelay, 50*time.Millisecond)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// StorePath returns the SQLite database path, defaulting under the data dir.
func (c *StoreConfig) StorePath() string {
	if c.Path != "" {
		return c.Path
	}
	return filepath.Join(DefaultDataDir(), "beacon.db")
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Executor.CoreWorkers < 1 {
		return fmt.Errorf("executor.core_workers must be positive, got %d", c.Executor.CoreWorkers)
	}
	if c.Executor.MaxWorkers < c.Executor.CoreWorkers {
		return fmt.Errorf("executor.max_workers (%d) must be >= core_workers (%d)",
			c.Executor.MaxWorkers, c.Executor.CoreWorkers)
	}
	if c.Executor.QueueCapacity < 0 {
		return fmt.Errorf("executor.queue_capacity must be non-negative, got %d", c.Executor.QueueCapacity)
	}

	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker.threshold must be positive, got %d", c.Breaker.Threshold)
	}

	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("rate_limit.requests must be positive, got %d", c.RateLimit.Requests)
	}
	if c.RateLimit.MaxEntries < 1 {
		return fmt.Errorf("rate_limit.max_entries must be positive, got %d", c.RateLimit.MaxEntries)
	}

	if c.Cache.MaxSize < 1 {
		return fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize)
	}
	if c.Cache.EvictionRatio <= 0 || c.Cache.EvictionRatio > 1 {
		return fmt.Errorf("cache.eviction_ratio must be in (0, 1], got %f", c.Cache.EvictionRatio)
	}

	if c.Search.MinTermLength < 1 {
		return fmt.Errorf("search.min_term_length must be positive, got %d", c.Search.MinTermLength)
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit must be in [1, %d], got %d",
			c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.TypeaheadLimit < 1 {
		return fmt.Errorf("search.typeahead_limit must be positive, got %d", c.Search.TypeaheadLimit)
	}
	if c.Search.MaxRetries < 0 {
		return fmt.Errorf("search.max_retries must be non-negative, got %d", c.Search.MaxRetries)
	}

	validBackends := map[string]bool{"fts5": true, "like": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Store.Backend)] {
		return fmt.Errorf("store.backend must be 'fts5', 'like', or 'bleve', got %s", c.Store.Backend)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	// Every duration field must parse.
	durations := map[string]string{
		"executor.admission_wait":   c.Executor.AdmissionWait,
		"executor.shutdown_timeout": c.Executor.ShutdownTimeout,
		"breaker.reset_window":      c.Breaker.ResetWindow,
		"rate_limit.window":         c.RateLimit.Window,
		"cache.ttl":                 c.Cache.TTL,
		"search.deadline":           c.Search.Deadline,
		"search.typeahead_deadline": c.Search.TypeaheadDeadline,
		"search.retry_delay":        c.Search.RetryDelay,
	}
	for field, val := range durations {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", field, val, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", field, val)
		}
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
