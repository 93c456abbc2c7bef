package search

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Relevance tiers. A field either matches the whole term exactly, starts
// with it, contains it, or contributes nothing.
const (
	tierExact     = 100.0
	tierPrefix    = 80.0
	tierSubstring = 50.0
)

// tierBonus classifies how value matches term. Both are compared
// case-insensitively; term is assumed pre-trimmed and pre-lowered.
func tierBonus(value, term string) float64 {
	v := strings.ToLower(value)
	switch {
	case v == term:
		return tierExact
	case strings.HasPrefix(v, term):
		return tierPrefix
	case strings.Contains(v, term):
		return tierSubstring
	default:
		return 0
	}
}

// scoreItem computes an item's relevance as the sum over its fields of
// tier × 1/(rank+1), so earlier fields dominate. It also fills in the
// item's highlights for matched fields.
func scoreItem(item *Item, term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return
	}

	var total float64
	var highlights map[string]string
	for i, f := range item.Fields {
		bonus := tierBonus(f.Value, term)
		if bonus == 0 {
			continue
		}
		total += bonus * (1.0 / float64(i+1))
		if highlights == nil {
			highlights = make(map[string]string)
		}
		highlights[f.Name] = highlightMatch(f.Value, term)
	}

	item.Score = total
	item.Highlights = highlights
}

// highlightMatch wraps the first case-insensitive occurrence of term in
// value with <mark> tags, preserving the original casing.
func highlightMatch(value, term string) string {
	lower := strings.ToLower(value)
	if len(lower) == len(value) {
		idx := strings.Index(lower, term)
		if idx < 0 {
			return value
		}
		end := idx + len(term)
		return value[:idx] + "<mark>" + value[idx:end] + "</mark>" + value[end:]
	}

	// Lowering changed byte lengths (e.g. U+0130), so indexes into lower
	// do not map back onto value. Scan rune windows on the original.
	for i := 0; i < len(value); {
		for j := i; j < len(value); {
			_, size := utf8.DecodeRuneInString(value[j:])
			j += size
			window := strings.ToLower(value[i:j])
			if window == term {
				return value[:i] + "<mark>" + value[i:j] + "</mark>" + value[j:]
			}
			if len(window) >= len(term) {
				break
			}
		}
		_, size := utf8.DecodeRuneInString(value[i:])
		i += size
	}
	return value
}

// sortByScore orders items descending by score. The sort is stable so
// equal scores keep their insertion order, which is category registration
// order for the combined list.
func sortByScore(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
}
