// Package cmd provides the CLI commands for Beacon.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bluetali/beacon/internal/logging"
	"github.com/bluetali/beacon/internal/profiling"
	"github.com/bluetali/beacon/pkg/version"
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profSession  = profiling.NewSession()
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the beacon CLI.
func NewRootCmd() *cobra.Command {
	var callerID string

	cmd := &cobra.Command{
		Use:   "beacon",
		Short: "Concurrent search across people, conversations, and messages",
		Long: `Beacon is a fault-tolerant search engine for workspace directories.

It fans a query out across people, conversations, and messages in
parallel, merges ranked results under a deadline, and degrades to
partial results when a category is slow or failing.

Run 'beacon' with no arguments for interactive typeahead search.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runInteractive(cmd, callerID)
		},
	}

	cmd.SetVersionTemplate("beacon version {{.Version}}\n")

	cmd.Flags().StringVar(&callerID, "caller", "", "Caller ID used for rate limiting and visibility")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.beacon/logs/")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newTypeaheadCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts CPU/trace profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		if err := profSession.CaptureCPU(profileCPU); err != nil {
			return err
		}
	}

	if profileTrace != "" {
		if err := profSession.CaptureTrace(profileTrace); err != nil {
			_ = profSession.Stop()
			return err
		}
	}

	return nil
}

// stopProfilingAndLogging stops profiling and logging, writes memory profile if requested.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	err := profSession.Stop()

	if profileMem != "" {
		if heapErr := profiling.SnapshotHeap(profileMem); heapErr != nil && err == nil {
			err = heapErr
		}
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}

	return err
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
