package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/bluetali/beacon/internal/output"
	"github.com/bluetali/beacon/internal/search"
	"github.com/bluetali/beacon/internal/store"
)

// statusInfo is the aggregate view printed by `beacon status`.
type statusInfo struct {
	Backend string          `json:"backend"`
	Healthy bool            `json:"healthy"`
	Counts  store.Counts    `json:"counts"`
	Engine  search.Snapshot `json:"engine"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store contents and engine state",
		Long: `Display the configured backend, entity counts per category, and a
snapshot of engine internals: worker pool, result cache, circuit
breaker, and rate limiter.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput bool) error {
	logger, logCleanup := cliLogger()
	defer logCleanup()

	eng, cleanup, err := openEngine(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	counts, err := eng.store.Counts(cmd.Context())
	if err != nil {
		return err
	}

	info := statusInfo{
		Backend: eng.cfg.Store.Backend,
		Healthy: eng.coord.Health(),
		Counts:  counts,
		Engine:  eng.coord.Metrics(),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("", "backend:       %s", info.Backend)
	out.Statusf("", "healthy:       %t", info.Healthy)
	out.Newline()
	out.Statusf("", "people:        %d", counts.People)
	out.Statusf("", "conversations: %d", counts.Conversations)
	out.Statusf("", "messages:      %d", counts.Messages)
	out.Newline()
	out.Statusf("", "workers:       %d/%d busy, %d tasks completed",
		info.Engine.Executor.Running, info.Engine.Executor.Capacity, info.Engine.Executor.Completed)
	out.Statusf("", "cache:         %d/%d entries, %d hits, %d misses",
		info.Engine.Cache.Size, info.Engine.Cache.MaxSize,
		info.Engine.Cache.Hits, info.Engine.Cache.Misses)
	out.Statusf("", "breaker:       %s (%d consecutive failures)",
		info.Engine.Breaker.State, info.Engine.Breaker.ConsecutiveFailures)
	out.Statusf("", "rate limit:    %d requests per %s, %d active callers",
		info.Engine.RateLimit.Requests, info.Engine.RateLimit.Window, info.Engine.RateLimit.Callers)

	if counts.People+counts.Conversations+counts.Messages == 0 {
		out.Newline()
		out.Warning("store is empty; run 'beacon seed' to load data")
	}
	return nil
}
