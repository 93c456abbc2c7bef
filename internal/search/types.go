package search

import (
	"time"

	"github.com/bluetali/beacon/internal/store"
)

// Request is one logical search call. Immutable once built; the coordinator
// works on a sanitized copy and never mutates the caller's value.
type Request struct {
	// Term is the raw search text; it is trimmed before use.
	Term string `json:"term"`

	// CallerID identifies the caller for rate limiting and visibility
	// filtering. Empty means anonymous.
	CallerID string `json:"caller_id,omitempty"`

	// Skip and Limit page the per-category results. Limit 0 means the
	// configured default.
	Skip  int `json:"skip"`
	Limit int `json:"limit"`

	// Categories restricts the fan-out. Empty means all registered
	// categories.
	Categories []store.Category `json:"categories,omitempty"`

	// Typeahead selects prefix matching, the short deadline, and the
	// fixed typeahead limit.
	Typeahead bool `json:"typeahead"`
}

// Field is one searchable attribute of an item, in scoring order. Earlier
// fields carry more weight.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Item is one scored search hit.
type Item struct {
	ID       string         `json:"id"`
	Category store.Category `json:"category"`

	// Title is the primary display string for the hit.
	Title string `json:"title"`

	// Fields are the searchable attributes that were scored, in order.
	Fields []Field `json:"fields,omitempty"`

	// Score is the summed relevance contribution across fields.
	Score float64 `json:"score"`

	// Highlights maps matched field names to their value with the
	// matched span wrapped in <mark> tags.
	Highlights map[string]string `json:"highlights,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// CategoryResult is one category's slice of a search response.
type CategoryResult struct {
	Category store.Category `json:"category"`
	Items    []Item         `json:"items"`
	Count    int            `json:"count"`

	// Complete is false when this category's task missed the join
	// deadline or failed; its Items are then empty.
	Complete bool `json:"complete"`

	// Error carries the category's failure message, if any. The failure
	// never aborts the other categories.
	Error string `json:"error,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Result is the unified search response.
type Result struct {
	RequestID string `json:"request_id"`
	Term      string `json:"term"`
	Skip      int    `json:"skip"`
	Limit     int    `json:"limit"`
	Typeahead bool   `json:"typeahead,omitempty"`

	// Categories holds per-category results in registration order.
	Categories []CategoryResult `json:"categories"`

	// Combined is every completed category's items merged and sorted
	// descending by score. Ties keep registration order.
	Combined []Item `json:"combined"`

	TotalCount int `json:"total_count"`

	// Complete is false when any category missed the deadline or
	// failed. Incomplete results are never cached.
	Complete bool `json:"complete"`

	// FromCache is true when the response was served without running
	// any category lookups.
	FromCache bool `json:"from_cache"`

	Duration time.Duration `json:"duration"`
}

// emptyResult is the "no search yet" response for terms below the minimum
// length. A normal state, not an error.
func emptyResult(term string, typeahead bool) *Result {
	return &Result{
		Term:       term,
		Typeahead:  typeahead,
		Categories: []CategoryResult{},
		Combined:   []Item{},
		Complete:   true,
	}
}
