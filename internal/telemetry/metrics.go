// Package telemetry collects local search-usage metrics: term frequency,
// zero-result terms, latency distribution, and cache effectiveness. Nothing
// leaves the process unless a sink is attached.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is a single recorded search.
type QueryEvent struct {
	Term      string
	Hits      int
	Latency   time.Duration
	FromCache bool
	Timestamp time.Time
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item; when full, the oldest item is overwritten.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffer contents oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current item count.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// ExtractTerms splits a query into lowercased terms of length >= 3.
func ExtractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount pairs a term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	CachedQueries       int64                   `json:"cached_queries"`
	CacheHitRate        float64                 `json:"cache_hit_rate"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	TopTerms            []TermCount             `json:"top_terms"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	ExactRepeatRate     float64                 `json:"exact_repeat_rate"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns zero-result queries as a percentage of all
// queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Sink persists aggregated metrics between runs.
type Sink interface {
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResultQuery(query string, timestamp time.Time) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetTopTerms(limit int) ([]TermCount, error)
	GetZeroResultQueries(limit int) ([]string, error)
	Close() error
}

// Config tunes the collector.
type Config struct {
	// TermCacheSize bounds the in-memory term frequency table.
	TermCacheSize int

	// ZeroResultCapacity bounds the zero-result ring buffer.
	ZeroResultCapacity int

	// RecentQueryWindow bounds the repeat-detection LRU.
	RecentQueryWindow int

	// FlushInterval is how often pending counts go to the sink.
	// Zero disables the background flush.
	FlushInterval time.Duration
}

// DefaultConfig returns the standard collector tuning.
func DefaultConfig() Config {
	return Config{
		TermCacheSize:      1000,
		ZeroResultCapacity: 100,
		RecentQueryWindow:  200,
		FlushInterval:      time.Minute,
	}
}

// Metrics collects search telemetry. Safe for concurrent use; Record is
// non-blocking apart from short internal locks.
type Metrics struct {
	mu sync.RWMutex

	total       int64
	cached      int64
	zeroResults int64
	repeats     int64
	latency     map[LatencyBucket]int64

	termCounts  *lru.Cache[string, int64]
	recentQuery *lru.Cache[string, struct{}]
	zeroBuffer  *CircularBuffer[string]

	pendingTerms   map[string]int64
	pendingZero    []QueryEvent
	pendingLatency map[LatencyBucket]int64

	sink  Sink
	since time.Time

	stopFlush chan struct{}
	flushDone chan struct{}
}

// New creates a collector with default tuning. A nil sink keeps metrics in
// memory only.
func New(sink Sink) *Metrics {
	return NewWithConfig(sink, DefaultConfig())
}

// NewWithConfig creates a collector with custom tuning.
func NewWithConfig(sink Sink, cfg Config) *Metrics {
	if cfg.TermCacheSize <= 0 {
		cfg.TermCacheSize = 1000
	}
	if cfg.RecentQueryWindow <= 0 {
		cfg.RecentQueryWindow = 200
	}

	termCounts, _ := lru.New[string, int64](cfg.TermCacheSize)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueryWindow)

	m := &Metrics{
		latency:        make(map[LatencyBucket]int64),
		termCounts:     termCounts,
		recentQuery:    recent,
		zeroBuffer:     NewCircularBuffer[string](cfg.ZeroResultCapacity),
		pendingTerms:   make(map[string]int64),
		pendingLatency: make(map[LatencyBucket]int64),
		sink:           sink,
		since:          time.Now(),
	}

	if sink != nil && cfg.FlushInterval > 0 {
		m.stopFlush = make(chan struct{})
		m.flushDone = make(chan struct{})
		go m.flushLoop(cfg.FlushInterval)
	}

	return m
}

func (m *Metrics) flushLoop(interval time.Duration) {
	defer close(m.flushDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = m.Flush()
		case <-m.stopFlush:
			return
		}
	}
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:8])
}

// RecordQuery captures one search outcome. It satisfies the coordinator's
// recorder interface.
func (m *Metrics) RecordQuery(term string, hits int, latency time.Duration, fromCache bool) {
	m.Record(QueryEvent{
		Term:      term,
		Hits:      hits,
		Latency:   latency,
		FromCache: fromCache,
		Timestamp: time.Now(),
	})
}

// Record captures one event.
func (m *Metrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if event.FromCache {
		m.cached++
	}
	bucket := LatencyToBucket(event.Latency)
	m.latency[bucket]++
	if m.sink != nil {
		m.pendingLatency[bucket]++
	}

	h := hashQuery(event.Term)
	if _, seen := m.recentQuery.Get(h); seen {
		m.repeats++
	} else {
		m.recentQuery.Add(h, struct{}{})
	}

	for _, term := range ExtractTerms(event.Term) {
		count, _ := m.termCounts.Get(term)
		m.termCounts.Add(term, count+1)
		m.pendingTerms[term]++
	}

	if event.Hits == 0 {
		m.zeroResults++
		m.zeroBuffer.Add(event.Term)
		if m.sink != nil {
			m.pendingZero = append(m.pendingZero, event)
		}
	}
}

// Snapshot returns the current metrics. Side-effect free.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latency := make(map[LatencyBucket]int64, len(m.latency))
	for bucket, count := range m.latency {
		latency[bucket] = count
	}

	terms := make([]TermCount, 0, m.termCounts.Len())
	for _, key := range m.termCounts.Keys() {
		if count, ok := m.termCounts.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
	if len(terms) > 20 {
		terms = terms[:20]
	}

	snap := &Snapshot{
		TotalQueries:        m.total,
		CachedQueries:       m.cached,
		ZeroResultCount:     m.zeroResults,
		ZeroResultQueries:   m.zeroBuffer.Items(),
		TopTerms:            terms,
		LatencyDistribution: latency,
		ExactRepeatCount:    m.repeats,
		Since:               m.since,
	}
	if m.total > 0 {
		snap.CacheHitRate = float64(m.cached) / float64(m.total)
		snap.ExactRepeatRate = float64(m.repeats) / float64(m.total)
	}
	return snap
}

// Flush persists pending aggregates to the sink. Safe without a sink.
func (m *Metrics) Flush() error {
	if m.sink == nil {
		return nil
	}

	m.mu.Lock()
	terms := m.pendingTerms
	zero := m.pendingZero
	latency := m.pendingLatency
	m.pendingTerms = make(map[string]int64)
	m.pendingZero = nil
	m.pendingLatency = make(map[LatencyBucket]int64)
	m.mu.Unlock()

	if err := m.sink.UpsertTermCounts(terms); err != nil {
		return err
	}
	for _, event := range zero {
		if err := m.sink.AddZeroResultQuery(event.Term, event.Timestamp); err != nil {
			return err
		}
	}
	date := time.Now().UTC().Format("2006-01-02")
	return m.sink.SaveLatencyCounts(date, latency)
}

// Close flushes and stops the background loop.
func (m *Metrics) Close() error {
	if m.stopFlush != nil {
		close(m.stopFlush)
		<-m.flushDone
		m.stopFlush = nil
	}
	return m.Flush()
}
