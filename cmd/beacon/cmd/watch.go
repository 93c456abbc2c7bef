package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluetali/beacon/internal/output"
	"github.com/bluetali/beacon/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the seed file and reload on change",
		Long: `Keep the engine running and reload the store whenever the seed file
changes. Rapid successive writes are coalesced into a single reload,
and the result cache is invalidated after each one.

Requires store.seed_path in configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet window before a reload fires")

	return cmd
}

func runWatch(cmd *cobra.Command, debounce time.Duration) error {
	logger, logCleanup := cliLogger()
	defer logCleanup()

	out := output.New(cmd.OutOrStdout())

	eng, cleanup, err := openEngine(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	seedPath := eng.cfg.Store.SeedPath
	if seedPath == "" {
		return fmt.Errorf("store.seed_path is not configured")
	}
	if !fileExists(seedPath) {
		return fmt.Errorf("seed file not found: %s", seedPath)
	}

	reload := func(ctx context.Context) error {
		counts, err := eng.store.Seed(ctx, seedPath)
		if err != nil {
			out.Errorf("reload failed: %v", err)
			return err
		}
		eng.coord.InvalidateCache()
		out.Successf("reloaded %d entities from %s", counts.Total(), seedPath)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watcher.New(seedPath, debounce, reload, logger)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	logger.Info("watching seed file", slog.String("path", seedPath))
	out.Statusf("👀", "watching %s (Ctrl+C to stop)", seedPath)

	<-ctx.Done()
	out.Newline()
	out.Statusf("", "stopped after %d reloads", w.Reloads())
	return nil
}
