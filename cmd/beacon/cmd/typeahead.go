package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/bluetali/beacon/internal/output"
	"github.com/bluetali/beacon/internal/ui"
)

func newTypeaheadCmd() *cobra.Command {
	var callerID string
	var format string

	cmd := &cobra.Command{
		Use:   "typeahead <term>",
		Short: "Run a single typeahead lookup",
		Long: `Run one typeahead (prefix) lookup and print the top suggestions.

Typeahead uses a short deadline and prefix matching, the same path the
interactive mode uses on every keystroke.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypeahead(cmd, strings.Join(args, " "), callerID, format)
		},
	}

	cmd.Flags().StringVar(&callerID, "caller", "", "Caller ID used for rate limiting and visibility")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runTypeahead(cmd *cobra.Command, term, callerID, format string) error {
	logger, logCleanup := cliLogger()
	defer logCleanup()

	eng, cleanup, err := openEngine(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := eng.coord.Typeahead(cmd.Context(), term, callerID)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if format == "json" {
		return out.ResultsJSON(res)
	}
	useColor := ui.IsTTY(cmd.OutOrStdout()) && !ui.DetectNoColor()
	out.Results(res, useColor)
	return nil
}

// runInteractive starts the typeahead TUI. Falls back to help when not
// attached to a terminal.
func runInteractive(cmd *cobra.Command, callerID string) error {
	if !ui.IsTTY(cmd.OutOrStdout()) {
		return cmd.Help()
	}

	logger, logCleanup := cliLogger()
	defer logCleanup()

	eng, cleanup, err := openEngine(logger)
	if err != nil {
		return err
	}
	defer cleanup()

	chosen, err := ui.Run(eng.coord, callerID)
	if err != nil {
		return err
	}
	if chosen != nil {
		out := output.New(cmd.OutOrStdout())
		out.Statusf("", "%s  %s", "["+string(chosen.Category)+"]", chosen.Title)
	}
	return nil
}
