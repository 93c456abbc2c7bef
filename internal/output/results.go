package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bluetali/beacon/internal/search"
	"github.com/bluetali/beacon/internal/store"
)

const boldMark = "\033[1m"
const resetMark = "\033[0m"

var categoryLabels = map[store.Category]string{
	store.CategoryPeople:        "People",
	store.CategoryConversations: "Conversations",
	store.CategoryMessages:      "Messages",
}

// Results prints a search result grouped by category.
func (w *Writer) Results(res *search.Result, useColor bool) {
	if res.TotalCount == 0 {
		w.Statusf("", "no results for %q", res.Term)
		return
	}

	for _, cr := range res.Categories {
		label := categoryLabels[cr.Category]
		if label == "" {
			label = string(cr.Category)
		}
		if cr.Error != "" {
			w.Warningf("%s: %s", label, cr.Error)
			continue
		}
		if len(cr.Items) == 0 {
			continue
		}

		_, _ = fmt.Fprintf(w.out, "\n%s (%d)\n", label, cr.Count)
		for _, item := range cr.Items {
			_, _ = fmt.Fprintf(w.out, "  %-6.1f %s\n", item.Score, renderMarks(item.Title, useColor))
			for _, field := range item.Fields {
				hl, ok := item.Highlights[field.Name]
				if !ok {
					continue
				}
				_, _ = fmt.Fprintf(w.out, "         %s: %s\n", field.Name, renderMarks(hl, useColor))
			}
		}
	}

	_, _ = fmt.Fprintln(w.out)
	summary := fmt.Sprintf("%d results in %s", res.TotalCount, res.Duration.Round(resolution(res)))
	if res.FromCache {
		summary += " (cached)"
	}
	w.Status("", summary)

	if !res.Complete {
		w.Warning("partial results; some categories did not respond in time")
	}
}

// ResultsJSON prints the result as indented JSON.
func (w *Writer) ResultsJSON(res *search.Result) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// renderMarks converts highlight spans into terminal emphasis, or
// strips them when color is off.
func renderMarks(s string, useColor bool) string {
	if useColor {
		s = strings.ReplaceAll(s, "<mark>", boldMark)
		return strings.ReplaceAll(s, "</mark>", resetMark)
	}
	s = strings.ReplaceAll(s, "<mark>", "")
	return strings.ReplaceAll(s, "</mark>", "")
}

func resolution(res *search.Result) time.Duration {
	if res.Duration >= time.Second {
		return 10 * time.Millisecond
	}
	return time.Millisecond
}
