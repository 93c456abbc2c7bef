package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bluetali/beacon/internal/config"
	"github.com/bluetali/beacon/internal/output"
	"github.com/bluetali/beacon/internal/store"
)

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Load entities from a JSON seed file",
		Long: `Replace the store contents with the people, conversations, and
messages from a JSON seed file.

The file defaults to store.seed_path from configuration. Seeding is
transactional: on any validation or insert failure the previous
contents are kept.

Examples:
  beacon seed testdata/seed.json
  beacon seed              # uses store.seed_path from config`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runSeed(cmd, path)
		},
	}

	return cmd
}

func runSeed(cmd *cobra.Command, path string) error {
	logger, logCleanup := cliLogger()
	defer logCleanup()

	out := output.New(cmd.OutOrStdout())

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	if path == "" {
		path = cfg.Store.SeedPath
	}
	if path == "" {
		return fmt.Errorf("no seed file given and store.seed_path is not configured")
	}
	if !fileExists(path) {
		return fmt.Errorf("seed file not found: %s", path)
	}

	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	counts, err := st.Seed(cmd.Context(), path)
	if err != nil {
		return err
	}

	out.Successf("seeded %d entities from %s", counts.Total(), path)
	out.Statusf("", "people: %d, conversations: %d, messages: %d",
		counts.People, counts.Conversations, counts.Messages)
	return nil
}
