package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ragbook/internal/rag"
)

func newAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested books",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx := cmd.Context()
			if a.Config.RequestTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.Config.RequestTimeout)
				defer cancel()
			}

			result, err := a.Engine.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printAnswer(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

// printAnswer writes a human readable answer with numbered sources.
func printAnswer(w io.Writer, r rag.AnswerResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nReason: %s\n", r.Answer, r.Reason)

	if len(r.Passages) > 0 {
		b.WriteString("\nSources:\n")
		for i, p := range r.Passages {
			fmt.Fprintf(&b, "  [%d] %s, p. %d (score %.3f)", i+1, p.Payload.DocTitle, p.Payload.Page, p.FusedScore)
			if p.Payload.Section != "" {
				fmt.Fprintf(&b, " - %s", p.Payload.Section)
			}
			b.WriteString("\n")
		}
	}

	if len(r.ProbingQuestions) > 0 {
		b.WriteString("\nTry asking:\n")
		for _, q := range r.ProbingQuestions {
			fmt.Fprintf(&b, "  - %s\n", q)
		}
	}

	if len(r.ClaimCheck.Unsupported) > 0 {
		fmt.Fprintf(&b, "\nUnsupported claims (%s):\n", r.ClaimCheck.Mode)
		for _, c := range r.ClaimCheck.Unsupported {
			fmt.Fprintf(&b, "  - %s\n", c)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
