package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var skipLexical bool

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a text or markdown file, or every supported file below a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			stats, ingestErr := a.Ingester.IngestPath(ctx, args[0])
			if stats != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(stats); err != nil {
					return fmt.Errorf("failed to write stats: %w", err)
				}
			}

			if !skipLexical && stats != nil && stats.DocumentsIndexed > 0 {
				idx, err := a.Lexical.Rebuild(ctx, nil)
				if err != nil {
					slog.Error("Failed to rebuild lexical index", "error", err)
				} else {
					slog.Info("Lexical index rebuilt", "chunks", idx.Len(), "path", a.Lexical.Path())
				}
			}
			return ingestErr
		},
	}
	cmd.Flags().BoolVar(&skipLexical, "skip-lexical", false, "Do not rebuild the lexical index after ingesting")
	return cmd
}
