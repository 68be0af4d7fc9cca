package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"ragbook/internal/lexical"
	"ragbook/internal/rag"
)

const (
	sourceQdrant = "qdrant"
	sourceSQLite = "sqlite"
)

type rebuildOptions struct {
	source string
	output string
	force  bool
}

func validateSource(source string) error {
	if source != sourceQdrant && source != sourceSQLite {
		return fmt.Errorf("invalid --source %q: must be %s or %s", source, sourceQdrant, sourceSQLite)
	}
	return nil
}

// checkOutput refuses to overwrite an existing index unless forced.
func checkOutput(path string, force bool) error {
	if path == "" || force {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
}

func newLexicalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexical",
		Short: "Manage the persisted BM25 index",
	}
	cmd.AddCommand(newLexicalRebuildCmd())
	return cmd
}

func newLexicalRebuildCmd() *cobra.Command {
	opts := rebuildOptions{}

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the lexical index from the vector store or the metadata database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if opts.output == "" {
				opts.output = a.Config.LexicalIndexPath
			}
			if err := checkOutput(opts.output, opts.force); err != nil {
				return err
			}

			var src lexical.ChunkSource = a.VectorSource()
			if opts.source == sourceSQLite {
				src = a.Chunks
			}

			idx, err := rag.NewLexicalProvider(opts.output, src, a.Config.Language).Rebuild(cmd.Context(), nil)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks (language %s) into %s\n", idx.Len(), idx.Language(), opts.output)
			return err
		},
	}
	// Flag errors surface before any connection is opened.
	cmd.PreRunE = func(*cobra.Command, []string) error {
		return validateSource(opts.source)
	}
	cmd.Flags().StringVar(&opts.source, "source", sourceQdrant, "Chunk source: qdrant or sqlite")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Index file (defaults to the configured lexical index path)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing index file")
	return cmd
}
