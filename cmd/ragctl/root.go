package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"ragbook/internal/app"
	"ragbook/internal/config"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ragctl",
		Short:         "Grounded question answering over a local book corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file (overrides RAGBOOK_CONFIG)")

	cmd.AddCommand(newIngestCmd(), newLexicalCmd(), newAskCmd())
	return cmd
}

// loadApp loads configuration, honoring --config, and wires the components.
// Logs go to stderr so command output stays parseable.
func loadApp(cmd *cobra.Command) (*app.App, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv(config.ConfigFileEnv, path); err != nil {
			return nil, fmt.Errorf("failed to set config path: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.SetDefault(app.NewLogger(cmd.ErrOrStderr(), cfg))

	return app.New(cfg, prometheus.NewRegistry())
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		slog.Warn("Failed to close resources", "error", err)
	}
}
