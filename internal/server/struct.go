package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/qa"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds a single /api/rag/ask request end to end
	// (embedding, retrieval and completion). Defaults to 2 minutes.
	AskTimeout time.Duration
	// ReindexTimeout bounds a single /api/rag/reindex request. Defaults to
	// 10 minutes; large documents need many embedding sub-batches.
	ReindexTimeout time.Duration
	// MaxUploadBytes caps the reindex request body. Defaults to
	// ingestion.MaxDocumentBytes plus multipart overhead.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all /api/rag/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// EmbeddingModel is reported by GET /api/rag/stats.
	EmbeddingModel string
	// MetricsRegistry is where server metrics are registered. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served at GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// service is the question-answering surface the handlers call.
// *qa.Service satisfies it; tests inject a fake.
type service interface {
	Ask(ctx context.Context, question string) (qa.Result, error)
	Ingest(ctx context.Context, chunks []string, mode ingestion.Mode) (ingestion.Report, error)
	IngestText(ctx context.Context, text string, mode ingestion.Mode) (ingestion.Report, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (qa.Stats, error)
	History(ctx context.Context, n int) ([]store.Entry, error)
	HistoryEnabled() bool
}

// Server is the HTTP server that exposes the question-answering service.
type Server struct {
	// svc answers questions and manages the index.
	svc service
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/rag/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// reindexRequest is the JSON body for POST /api/rag/reindex when no file is
// uploaded. Exactly one of Text or Chunks must be set.
type reindexRequest struct {
	// Text is a whole document, split with the configured chunk size.
	Text string `json:"text,omitempty"`
	// Chunks are pre-split passages indexed as-is.
	Chunks []string `json:"chunks,omitempty"`
}

// reindexResponse is the JSON response for POST /api/rag/reindex.
type reindexResponse struct {
	// Chunks is the number of chunks written by this request.
	Chunks int `json:"chunks"`
	// Vectors is the index size after the request.
	Vectors int `json:"vectors"`
	// Millis is the wall-clock duration of the ingest in milliseconds.
	Millis int64 `json:"ms"`
}

// statsResponse is the JSON response for GET /api/rag/stats.
type statsResponse struct {
	// Size is the number of indexed chunks.
	Size int `json:"size"`
	// Dimensions is the embedding width.
	Dimensions int `json:"dimensions"`
	// EmbeddingModel is the configured embedding model name.
	EmbeddingModel string `json:"embedding_model"`
}

// historyResponse is the JSON response for GET /api/rag/history.
type historyResponse struct {
	// Entries are the most recent answers, newest first.
	Entries []store.Entry `json:"entries"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`
	// Kind is the failure classification, when known.
	Kind string `json:"kind,omitempty"`
}
