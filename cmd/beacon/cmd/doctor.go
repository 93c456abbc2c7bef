package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bluetali/beacon/internal/config"
	"github.com/bluetali/beacon/internal/health"
	"github.com/bluetali/beacon/internal/output"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run diagnostics to ensure Beacon can operate correctly.

Checks:
  - Data directory exists and is writable
  - Disk space (50MB minimum)
  - Store opens and answers queries
  - Engine accepts requests

An empty store is a warning, not a failure.`,
		Example: `  # Run diagnostics
  beacon doctor

  # JSON output for scripting
  beacon doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, jsonOutput bool) error {
	logger, logCleanup := cliLogger()
	defer logCleanup()

	opts := []health.Option{
		health.WithDataDir(config.DefaultDataDir()),
	}

	// Engine and store checks need the stack up; if it fails to open the
	// remaining checks still report.
	eng, cleanup, err := openEngine(logger)
	if err == nil {
		defer cleanup()
		opts = append(opts, health.WithStore(eng.store), health.WithEngine(eng.coord))
	}

	checker := health.New(opts...)
	results := checker.RunAll(cmd.Context())

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(results); encErr != nil {
			return encErr
		}
	} else {
		out := output.New(cmd.OutOrStdout())
		for _, r := range results {
			switch r.Status {
			case health.StatusPass:
				out.Successf("%s: %s", r.Name, r.Message)
			case health.StatusWarn:
				out.Warningf("%s: %s", r.Name, r.Message)
			default:
				out.Errorf("%s: %s", r.Name, r.Message)
			}
		}
	}

	if err != nil {
		return fmt.Errorf("engine failed to start: %w", err)
	}
	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("diagnostics found critical failures")
	}
	return nil
}
