package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server.

Documents are uploaded with POST /api/rag/reindex and questions asked with
POST /api/rag/ask. When QDRANT_HOST is set the index lives in Qdrant and
survives restarts; otherwise it is held in memory.

Set DOCQA_API_KEY to require "Authorization: Bearer <key>" on /api/rag/*.

Examples:
  docqa serve
  docqa serve --port 9090
  QDRANT_HOST=localhost docqa serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			flush, ok := tracing.Setup()
			defer flush()
			if ok {
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			rt, err := buildRuntime(ctx, qdrantConfigured(), log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer rt.Close()

			pingers := []server.Pinger{
				server.NewLLMPinger(rt.model, provider.NewHealthCheck(rt.provider), string(rt.provider.Backend)),
			}
			if rt.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(rt.qdrant.Client()))
			}
			if rt.history != nil {
				pingers = append(pingers, server.NewHistoryPinger(rt.history.Ping))
			}

			srv, err := server.New(rt.svc, &server.Config{
				Host:           host,
				Port:           port,
				Logger:         log,
				Pingers:        pingers,
				APIKey:         os.Getenv("DOCQA_API_KEY"),
				RateLimit:      getEnvFloat("DOCQA_RATE_LIMIT", 0),
				RateBurst:      getEnvInt("DOCQA_RATE_BURST", 0),
				EmbeddingModel: rt.embedder.Model(),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx) //nolint:wrapcheck // already prefixed by the server package
		},
	}

	cmd.Flags().StringVar(&host, "host", getEnvOrDefault("DOCQA_HOST", "127.0.0.1"), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", getEnvInt("DOCQA_PORT", 8080), "TCP port to listen on")

	return cmd
}
