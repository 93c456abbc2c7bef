package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bluetali/beacon/internal/output"
	"github.com/bluetali/beacon/internal/search"
	"github.com/bluetali/beacon/internal/store"
	"github.com/bluetali/beacon/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	skip       int
	callerID   string
	categories []string
	format     string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search people, conversations, and messages",
		Long: `Search all categories in parallel and print merged, ranked results.

Results are scored by match quality (exact > prefix > substring) with
earlier fields weighted higher. When a category is slow or failing the
remaining categories still return, marked as partial.

Examples:
  beacon search "ana"
  beacon search "launch planning" --limit 5
  beacon search "standup" --category messages --caller u42
  beacon search "design" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.Join(args, " ")
			return runSearch(cmd, term, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results per category (0 = configured default)")
	cmd.Flags().IntVar(&opts.skip, "skip", 0, "Results to skip per category (pagination)")
	cmd.Flags().StringVar(&opts.callerID, "caller", "", "Caller ID used for rate limiting and visibility")
	cmd.Flags().StringSliceVarP(&opts.categories, "category", "c", nil, "Restrict to categories: people, conversations, messages (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, term string, opts searchOptions) error {
	logger, logCleanup := cliLogger()
	defer logCleanup()

	categories, err := parseCategories(opts.categories)
	if err != nil {
		return err
	}

	eng, cleanup, err := openEngine(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	logger.Info("search_started", slog.String("term", term), slog.Int("limit", opts.limit))

	res, err := eng.coord.Search(cmd.Context(), search.Request{
		Term:       term,
		CallerID:   opts.callerID,
		Skip:       opts.skip,
		Limit:      opts.limit,
		Categories: categories,
	})
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		return out.ResultsJSON(res)
	}
	useColor := ui.IsTTY(cmd.OutOrStdout()) && !ui.DetectNoColor()
	out.Results(res, useColor)
	return nil
}

// parseCategories validates --category values.
func parseCategories(names []string) ([]store.Category, error) {
	if len(names) == 0 {
		return nil, nil
	}
	valid := map[string]store.Category{
		"people":        store.CategoryPeople,
		"conversations": store.CategoryConversations,
		"messages":      store.CategoryMessages,
	}
	var categories []store.Category
	for _, name := range names {
		c, ok := valid[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown category %q (valid: people, conversations, messages)", name)
		}
		categories = append(categories, c)
	}
	return categories, nil
}
