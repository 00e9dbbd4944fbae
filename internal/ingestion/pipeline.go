// Package ingestion implements the document ingestion pipeline. It loads a
// plain-text document, splits it into overlapping chunks, embeds every chunk
// and writes the results into the vector index.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Mode selects how an ingest treats existing index contents.
type Mode string

const (
	// ModeReplace clears the index and assigns ids 0..n-1.
	ModeReplace Mode = "replace"
	// ModeAppend keeps existing chunks and assigns ids from the current size.
	ModeAppend Mode = "append"
)

// ParseMode maps a user-supplied mode string to a Mode. The empty string is
// ModeReplace.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeReplace:
		return ModeReplace, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", rag.NewError(rag.KindInvalidInput, "ingestion", nil,
			"unknown mode %q, valid values: replace, append", s)
	}
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of runes per chunk.
	// Defaults to 1000 if zero.
	ChunkSize int

	// ChunkOverlap is the number of runes shared by consecutive chunks.
	// Defaults to 100 if zero.
	ChunkOverlap int

	// HTTPTimeout is the timeout for each document fetch request.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string

	// Logger receives progress events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Report summarises one completed ingest.
type Report struct {
	// Chunks is the number of chunks written by this ingest.
	Chunks int `json:"chunks"`
	// Vectors is the index size after the ingest.
	Vectors int `json:"vectors"`
	// Elapsed is the wall-clock duration of the ingest.
	Elapsed time.Duration `json:"-"`
}

// Pipeline orchestrates the chunk → embed → index flow. Ingests are
// serialized so append-mode id assignment cannot race.
type Pipeline struct {
	// embedder converts chunk text into normalized vectors.
	embedder rag.Embedder

	// index stores the embedded chunks.
	index rag.Index

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used by Fetch.
	httpClient *http.Client

	// log receives progress events.
	log *slog.Logger

	// mu serializes Ingest calls.
	mu sync.Mutex
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, index rag.Index, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingestion: index must not be nil")
	}
	resolved := Config{}
	if cfg != nil {
		resolved = *cfg
	}
	if resolved.ChunkSize <= 0 {
		resolved.ChunkSize = DefaultChunkSize
	}
	if resolved.ChunkOverlap == 0 {
		resolved.ChunkOverlap = DefaultChunkOverlap
	}
	if resolved.ChunkOverlap < 0 || resolved.ChunkOverlap >= resolved.ChunkSize {
		resolved.ChunkOverlap = resolved.ChunkSize / 10
	}
	if resolved.HTTPTimeout <= 0 {
		resolved.HTTPTimeout = 30 * time.Second
	}
	if resolved.UserAgent == "" {
		resolved.UserAgent = "docqa-go/1.0 (document ingestion)"
	}
	if resolved.Logger == nil {
		resolved.Logger = slog.Default()
	}

	return &Pipeline{
		embedder: embedder,
		index:    index,
		cfg:      &resolved,
		httpClient: &http.Client{
			Timeout: resolved.HTTPTimeout,
		},
		log: resolved.Logger,
	}, nil
}

// Split chunks text with the pipeline's configured size and overlap.
func (p *Pipeline) Split(text string) []string {
	return Chunk(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
}

// IngestText splits text and ingests the resulting chunks.
func (p *Pipeline) IngestText(ctx context.Context, text string, mode Mode) (Report, error) {
	return p.Ingest(ctx, p.Split(text), mode)
}

// Ingest embeds every chunk and writes them to the index. All vectors are
// computed before the index is touched, and replace mode swaps the index
// content in one step, so any failure leaves the index exactly as it was.
func (p *Pipeline) Ingest(ctx context.Context, chunks []string, mode Mode) (Report, error) {
	start := time.Now()
	if len(chunks) == 0 {
		return Report{}, rag.NewError(rag.KindInvalidInput, "ingestion", nil, "document produced no chunks")
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return Report{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	log := logging.Component(logging.FromContextOr(ctx, p.log), "ingestion").
		With(slog.String(logging.KeyMode, string(mode)))
	log.Info("ingestion: embedding chunks", slog.Int("chunks", len(chunks)))
	vectors, err := p.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return Report{}, fmt.Errorf("ingestion: embedding failed: %w", err)
	}

	firstID := 0
	if mode == ModeAppend {
		if firstID, err = p.index.Size(ctx); err != nil {
			return Report{}, fmt.Errorf("ingestion: size failed: %w", err)
		}
	}

	batch := make([]rag.Chunk, len(chunks))
	for i, text := range chunks {
		batch[i] = rag.Chunk{ID: firstID + i, Text: text, Vector: vectors[i]}
	}

	switch mode {
	case ModeReplace:
		if err := p.index.Replace(ctx, batch...); err != nil {
			return Report{}, fmt.Errorf("ingestion: replace failed: %w", err)
		}
	case ModeAppend:
		if err := p.index.Add(ctx, batch...); err != nil {
			return Report{}, fmt.Errorf("ingestion: add failed: %w", err)
		}
	}

	size, err := p.index.Size(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("ingestion: size failed: %w", err)
	}

	report := Report{Chunks: len(chunks), Vectors: size, Elapsed: time.Since(start)}
	log.Info("ingestion: complete",
		slog.Int("chunks", report.Chunks),
		slog.Int("vectors", report.Vectors),
		slog.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}
