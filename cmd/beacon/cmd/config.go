package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bluetali/beacon/configs"
	"github.com/bluetali/beacon/internal/config"
	"github.com/bluetali/beacon/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and initialize configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, user config,
project config, and BEACON_* environment variables.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var project bool
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Write a commented configuration template.

By default creates the user config at ~/.config/beacon/config.yaml.
With --project, creates .beacon.yaml in the working directory instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			path := config.GetUserConfigPath()
			template := configs.UserConfigTemplate
			if project {
				path = ".beacon.yaml"
				template = configs.ProjectConfigTemplate
			}

			if fileExists(path) && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create config dir: %w", err)
				}
			}
			if err := os.WriteFile(path, []byte(template), 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			out.Successf("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&project, "project", false, "Create .beacon.yaml in the working directory")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file locations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			userPath := config.GetUserConfigPath()
			marker := " (missing)"
			if config.UserConfigExists() {
				marker = ""
			}
			out.Statusf("", "user:    %s%s", userPath, marker)

			projectPath := ".beacon.yaml"
			marker = " (missing)"
			if fileExists(projectPath) {
				marker = ""
			}
			out.Statusf("", "project: %s%s", projectPath, marker)
			return nil
		},
	}
}
