package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/qa"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question and prints the answer with its cited chunks.
func NewAskCmd() *cobra.Command {
	var doc string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about a document",
		Long: `Ask a single question and print the grounded answer.

With --doc the file is indexed in memory first. Without it, the question is
answered from the Qdrant collection populated by 'docqa ingest' (requires
QDRANT_HOST).

Examples:
  docqa ask --doc notes.md "Trí tuệ nhân tạo là gì?"
  docqa ask --doc paper.txt "Summarize the introduction in 3 bullet points"
  QDRANT_HOST=localhost docqa ask "Compare method A and method B"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if doc == "" && !qdrantConfigured() {
				return fmt.Errorf("ask: %w", rag.NewError(rag.KindConfigurationMissing, "ask", nil,
					"pass --doc FILE or set QDRANT_HOST to query an ingested collection"))
			}

			flush, _ := tracing.Setup()
			defer flush()

			rt, err := buildRuntime(ctx, doc == "", log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer rt.Close()

			if doc != "" {
				if err := indexDocument(ctx, rt.svc, doc, log); err != nil {
					return fmt.Errorf("ask: %w", err)
				}
			}

			res, err := rt.svc.Ask(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res) //nolint:wrapcheck // CLI entry point
			}
			fmt.Fprintln(out, res.Answer)
			if line := formatSources(res); line != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&doc, "doc", "d", "", "Text or markdown document to answer from")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}

// formatSources renders the cited chunks as a single line, or "" when the
// answer cites nothing.
func formatSources(res qa.Result) string {
	if len(res.Sources) == 0 {
		return ""
	}
	parts := make([]string, len(res.Sources))
	for i, s := range res.Sources {
		parts[i] = fmt.Sprintf("#%d (%.3f)", s.ID, s.Score)
	}
	return fmt.Sprintf("[%s] sources: %s", res.Intent, strings.Join(parts, ", "))
}
