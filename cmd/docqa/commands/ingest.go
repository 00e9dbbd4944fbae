package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
)

// NewIngestCmd constructs the `docqa ingest` command, which indexes documents
// into the Qdrant collection used by `ask`, `chat` and `serve`.
func NewIngestCmd() *cobra.Command {
	var files []string
	var urls []string
	var appendMode bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index documents into the Qdrant collection",
		Long: `Split, embed and store text documents in Qdrant.

By default the collection is replaced by the first document; later documents
in the same invocation, or every document with --append, are added after the
existing chunks.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: docqa)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   huggingface (default), openai, azure, ollama
  HF_API_KEY           HuggingFace token for the default provider

Examples:
  docqa ingest --file handbook.md
  docqa ingest --file a.txt --file b.txt
  docqa ingest --append --url https://example.com/notes.txt`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if len(files) == 0 && len(urls) == 0 {
				return fmt.Errorf("ingest: at least one --file or --url is required")
			}
			if !qdrantConfigured() {
				return fmt.Errorf("ingest: %w", rag.NewError(rag.KindConfigurationMissing, "ingest", nil,
					"QDRANT_HOST is required, ingested documents are stored in Qdrant"))
			}

			emb, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			idx, err := openQdrant(ctx, emb.Dimensions(), log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer idx.Close()

			cfg := qaConfigFromEnv()
			pipeline, err := ingestion.NewPipeline(emb, idx, &ingestion.Config{
				ChunkSize:    cfg.ChunkSize,
				ChunkOverlap: cfg.ChunkOverlap,
				Logger:       log,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			mode := ingestion.ModeReplace
			if appendMode {
				mode = ingestion.ModeAppend
			}

			type source struct {
				name string
				load func() (string, error)
			}
			var sources []source
			for _, f := range files {
				sources = append(sources, source{f, func() (string, error) {
					fh, err := os.Open(f)
					if err != nil {
						return "", fmt.Errorf("open %s: %w", f, err)
					}
					defer fh.Close()
					return ingestion.LoadText(f, fh) //nolint:wrapcheck // names the file already
				}})
			}
			for _, u := range urls {
				sources = append(sources, source{u, func() (string, error) {
					return pipeline.Fetch(ctx, u) //nolint:wrapcheck // names the URL already
				}})
			}

			log.Info("starting ingestion", slog.Int("sources", len(sources)), slog.String("mode", string(mode)))

			for _, src := range sources {
				text, err := src.load()
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				report, err := pipeline.IngestText(ctx, text, mode)
				if err != nil {
					return fmt.Errorf("ingest: %s: %w", src.name, err)
				}
				log.Info("source indexed",
					slog.String("source", src.name),
					slog.Int("chunks", report.Chunks),
					slog.Int("vectors", report.Vectors),
					slog.Duration("duration", report.Elapsed),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks (%d in collection)\n", src.name, report.Chunks, report.Vectors)
				mode = ingestion.ModeAppend
			}

			log.Info("ingestion complete", slog.Int("sources", len(sources)))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Text or markdown file to ingest (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL of a text document to ingest (repeatable)")
	cmd.Flags().BoolVar(&appendMode, "append", false, "Keep existing chunks instead of replacing the collection")

	return cmd
}
