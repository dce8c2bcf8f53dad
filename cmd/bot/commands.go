package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/edgard/slackai/internal/config"
)

const defaultConfigPath = "./config.yaml"

var errRunFailed = errors.New("bot exited with failure")

// newRootCmd creates the CLI root command with every subcommand registered.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "slackai",
		Short:        "Slack assistant backed by Gemini",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to the configuration file")

	rootCmd.AddCommand(
		newServeCmd(),
		newCheckConfigCmd(),
	)
	return rootCmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack ingress and event workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if code := run(cmd.Context(), path); code != 0 {
				return errRunFailed
			}
			return nil
		},
	}
}

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then print a summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

// printSummary writes the effective configuration without secrets.
func printSummary(w io.Writer, cfg *config.Config) {
	backend := "vertex"
	if cfg.Gemini.APIKey != "" {
		backend = "gemini-api"
	}
	fmt.Fprintf(w, "configuration OK\n")
	fmt.Fprintf(w, "  server.addr:        %s\n", cfg.Server.Addr)
	fmt.Fprintf(w, "  slack.command:      %s\n", cfg.Slack.SummarizeCommand)
	fmt.Fprintf(w, "  slack.shortcut:     %s\n", cfg.Slack.SummarizeThreadCallback)
	fmt.Fprintf(w, "  gemini.backend:     %s\n", backend)
	fmt.Fprintf(w, "  gemini.model:       %s\n", cfg.Gemini.ModelName)
	fmt.Fprintf(w, "  history.max_pages:  %d\n", cfg.History.MaxPages)
	fmt.Fprintf(w, "  window.max_hours:   %g\n", cfg.Window.MaxHours)
	fmt.Fprintf(w, "  dispatch.workers:   %d\n", cfg.Dispatch.Workers)
}
