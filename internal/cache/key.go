package cache

import (
	"fmt"
	"sort"
	"strings"
)

// AnonCaller is the caller slot used when a request carries no caller ID.
const AnonCaller = "anon"

// allCategories is the scope segment for an unrestricted request.
const allCategories = "all"

// Key builds a cache key from the full request shape. Two requests collide
// only if every field of the tuple matches, so a typeahead result can never
// be served for a full search, and a category-filtered result can never be
// served for an unfiltered one.
//
// Layout: namespace:term:caller:typeahead:skip:limit:categories, with the
// term lower-cased and trimmed so equivalent spellings share an entry, and
// the category list sorted so filter order does not split entries.
func Key(namespace, term, callerID string, typeahead bool, skip, limit int, categories []string) string {
	if callerID == "" {
		callerID = AnonCaller
	}
	normalized := strings.ToLower(strings.TrimSpace(term))
	scope := allCategories
	if len(categories) > 0 {
		sorted := make([]string, len(categories))
		copy(sorted, categories)
		sort.Strings(sorted)
		scope = strings.Join(sorted, ",")
	}
	return fmt.Sprintf("%s:%s:%s:%t:%d:%d:%s", namespace, normalized, callerID, typeahead, skip, limit, scope)
}
