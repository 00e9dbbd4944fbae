package commands

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/tracing"
	"github.com/54b3r/docqa-go/internal/tui"
)

// NewChatCmd constructs the `docqa chat` command, an interactive terminal UI
// for asking several questions about one document.
func NewChatCmd() *cobra.Command {
	var doc string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a document in the terminal",
		Long: `Open an interactive terminal session over a document.

The document is indexed once at startup; each question is then answered from
it. Without --doc the Qdrant collection is used (requires QDRANT_HOST).

Logs go to stderr; set LOG_LEVEL=warn to keep the screen clean.

Examples:
  docqa chat --doc handbook.md`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if doc == "" && !qdrantConfigured() {
				return fmt.Errorf("chat: %w", rag.NewError(rag.KindConfigurationMissing, "chat", nil,
					"pass --doc FILE or set QDRANT_HOST to chat with an ingested collection"))
			}

			flush, _ := tracing.Setup()
			defer flush()

			rt, err := buildRuntime(ctx, doc == "", log)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			defer rt.Close()

			title := "qdrant:" + getEnvOrDefault("QDRANT_COLLECTION", defaultCollection)
			if doc != "" {
				if err := indexDocument(ctx, rt.svc, doc, log); err != nil {
					return fmt.Errorf("chat: %w", err)
				}
				title = filepath.Base(doc)
			}

			m := tui.New(rt.svc, title, timeout)
			if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
				return fmt.Errorf("chat: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&doc, "doc", "d", "", "Text or markdown document to chat with")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Per-question timeout")

	return cmd
}
