// Package qa is the question-answering service: it owns the index, the
// embedder and the answer pipeline, and exposes the ask, ingest and clear
// operations used by the HTTP server, the CLI and the terminal UI.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/intent"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// Default retrieval settings and canned answers.
const (
	DefaultTopK               = 4
	DefaultMinScore           = 0.35
	DefaultEmptyIndexAnswer   = "Chưa upload dữ liệu PDF."
	DefaultInsufficientAnswer = "Tôi không biết."
)

// Outcome tells a caller which path produced an answer.
type Outcome string

const (
	// OutcomeAnswered means the model composed an answer from retrieved chunks.
	OutcomeAnswered Outcome = "answered"
	// OutcomeEmptyIndex means nothing has been ingested yet.
	OutcomeEmptyIndex Outcome = "empty_index"
	// OutcomeInsufficientEvidence means no chunk cleared the score threshold.
	OutcomeInsufficientEvidence Outcome = "insufficient_evidence"
)

// Result is the answer to one question.
type Result struct {
	// Answer is the text shown to the user.
	Answer string `json:"answer"`
	// Sources are the chunks the answer was grounded in, in ranked order.
	// Empty unless Outcome is OutcomeAnswered.
	Sources []answer.Source `json:"sources"`
	// Intent is the detected question intent.
	Intent intent.Intent `json:"intent"`
	// Outcome identifies the path that produced Answer.
	Outcome Outcome `json:"outcome"`
}

// Stats describes the current index.
type Stats struct {
	// Size is the number of indexed chunks.
	Size int `json:"size"`
	// Dimensions is the embedding width.
	Dimensions int `json:"dimensions"`
}

// Deps are the collaborators a Service is built from.
type Deps struct {
	// Index stores chunks. Required.
	Index rag.Index
	// Embedder embeds chunks and questions. Required.
	Embedder rag.Embedder
	// Completer composes answers. Required.
	Completer answer.Completer
	// History records every answered question. Optional.
	History store.AskLog
}

// Config holds the tunables of a Service. Zero fields take the defaults.
type Config struct {
	// TopK is the number of chunks passed to the model. Default 4.
	TopK int
	// MinScore is the similarity threshold below which the service answers
	// "don't know". Default 0.35; -1 accepts every candidate.
	MinScore float64
	// EmptyIndexAnswer is returned when nothing has been ingested.
	EmptyIndexAnswer string
	// InsufficientAnswer is returned when no chunk clears MinScore.
	InsufficientAnswer string
	// Rerank tunes the oversample factor and boosts.
	Rerank *rag.RerankConfig
	// MaxContextTokens caps the estimated prompt size.
	MaxContextTokens int
	// ChunkSize and ChunkOverlap configure the ingestion splitter, in runes.
	ChunkSize, ChunkOverlap int
	// Logger is the structured logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Service answers questions against the ingested document.
type Service struct {
	// index holds the ingested chunks.
	index rag.Index
	// embedder embeds questions.
	embedder rag.Embedder
	// reranker selects the chunks for each question.
	reranker *rag.Reranker
	// answerer composes the grounded answer.
	answerer *answer.Answerer
	// pipeline ingests documents into index.
	pipeline *ingestion.Pipeline
	// history records answered questions; nil disables recording.
	history store.AskLog
	// cfg holds the resolved configuration.
	cfg Config
	// log is the structured logger.
	log *slog.Logger
}

// New constructs a Service from deps and cfg.
func New(deps Deps, cfg *Config) (*Service, error) {
	if deps.Index == nil {
		return nil, fmt.Errorf("qa: index must not be nil")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("qa: embedder must not be nil")
	}
	resolved := Config{}
	if cfg != nil {
		resolved = *cfg
	}
	if resolved.TopK <= 0 {
		resolved.TopK = DefaultTopK
	}
	if resolved.MinScore == 0 {
		resolved.MinScore = DefaultMinScore
	}
	if resolved.EmptyIndexAnswer == "" {
		resolved.EmptyIndexAnswer = DefaultEmptyIndexAnswer
	}
	if resolved.InsufficientAnswer == "" {
		resolved.InsufficientAnswer = DefaultInsufficientAnswer
	}
	if resolved.Logger == nil {
		resolved.Logger = slog.Default()
	}

	reranker, err := rag.NewReranker(deps.Index, resolved.Rerank)
	if err != nil {
		return nil, fmt.Errorf("qa: %w", err)
	}
	answerer, err := answer.New(deps.Completer, &answer.Config{
		MaxContextTokens: resolved.MaxContextTokens,
		Logger:           resolved.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("qa: %w", err)
	}
	pipeline, err := ingestion.NewPipeline(deps.Embedder, deps.Index, &ingestion.Config{
		ChunkSize:    resolved.ChunkSize,
		ChunkOverlap: resolved.ChunkOverlap,
		Logger:       resolved.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("qa: %w", err)
	}

	return &Service{
		index:    deps.Index,
		embedder: deps.Embedder,
		reranker: reranker,
		answerer: answerer,
		pipeline: pipeline,
		history:  deps.History,
		cfg:      resolved,
		log:      resolved.Logger,
	}, nil
}

// Pipeline returns the ingestion pipeline writing into the service's index.
func (s *Service) Pipeline() *ingestion.Pipeline { return s.pipeline }

// Ask answers question from the ingested chunks. An empty index and a pool
// with no chunk above MinScore are normal outcomes, not errors; only a blank
// question and collaborator failures return an error.
func (s *Service) Ask(ctx context.Context, question string) (Result, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, rag.NewError(rag.KindInvalidInput, "qa", nil, "question must not be empty")
	}

	hint := intent.Detect(question)
	log := logging.FromContextOr(ctx, s.log).With(slog.String(logging.KeyIntent, hint.Intent.String()))

	size, err := s.index.Size(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("qa: size: %w", err)
	}
	if size == 0 {
		res := Result{Answer: s.cfg.EmptyIndexAnswer, Sources: []answer.Source{}, Intent: hint.Intent, Outcome: OutcomeEmptyIndex}
		s.record(ctx, question, res, start)
		return res, nil
	}

	query, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return Result{}, fmt.Errorf("qa: embed question: %w", err)
	}

	chunks, err := s.reranker.Rerank(ctx, question, hint, query, s.cfg.TopK, s.cfg.MinScore)
	if err != nil {
		return Result{}, fmt.Errorf("qa: rerank: %w", err)
	}
	if len(chunks) == 0 {
		log.Info("qa: no chunk cleared the score threshold",
			slog.String(logging.KeyOutcome, string(OutcomeInsufficientEvidence)),
			slog.Float64("min_score", s.cfg.MinScore),
		)
		res := Result{Answer: s.cfg.InsufficientAnswer, Sources: []answer.Source{}, Intent: hint.Intent, Outcome: OutcomeInsufficientEvidence}
		s.record(ctx, question, res, start)
		return res, nil
	}

	ans, err := s.answerer.Answer(ctx, question, hint, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("qa: %w", err)
	}

	res := Result{Answer: ans.Answer, Sources: ans.Sources, Intent: hint.Intent, Outcome: OutcomeAnswered}
	log.Info("qa: answered",
		slog.String(logging.KeyOutcome, string(OutcomeAnswered)),
		slog.Int("sources", len(res.Sources)),
		slog.Duration("elapsed", time.Since(start)),
	)
	s.record(ctx, question, res, start)
	return res, nil
}

// Ingest writes pre-split chunks into the index.
func (s *Service) Ingest(ctx context.Context, chunks []string, mode ingestion.Mode) (ingestion.Report, error) {
	return s.pipeline.Ingest(ctx, chunks, mode) //nolint:wrapcheck // pipeline errors are already prefixed
}

// IngestText splits text and writes the chunks into the index.
func (s *Service) IngestText(ctx context.Context, text string, mode ingestion.Mode) (ingestion.Report, error) {
	return s.pipeline.IngestText(ctx, text, mode) //nolint:wrapcheck // pipeline errors are already prefixed
}

// Clear empties the index.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.index.Clear(ctx); err != nil {
		return fmt.Errorf("qa: clear: %w", err)
	}
	s.log.Info("qa: index cleared")
	return nil
}

// Size returns the number of indexed chunks.
func (s *Service) Size(ctx context.Context) (int, error) {
	n, err := s.index.Size(ctx)
	if err != nil {
		return 0, fmt.Errorf("qa: size: %w", err)
	}
	return n, nil
}

// Stats reports the index size and embedding width.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	n, err := s.Size(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Size: n, Dimensions: s.embedder.Dimensions()}, nil
}

// History returns the most recent n recorded answers, or nil when recording
// is disabled.
func (s *Service) History(ctx context.Context, n int) ([]store.Entry, error) {
	if s.history == nil {
		return nil, nil
	}
	entries, err := s.history.Recent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("qa: history: %w", err)
	}
	return entries, nil
}

// HistoryEnabled reports whether answers are being recorded.
func (s *Service) HistoryEnabled() bool { return s.history != nil }

// record persists the result. Failures are logged and never surface to the
// caller.
func (s *Service) record(ctx context.Context, question string, res Result, start time.Time) {
	if s.history == nil {
		return
	}
	sources := make([]store.Source, len(res.Sources))
	for i, src := range res.Sources {
		sources[i] = store.Source{ID: src.ID, Score: src.Score}
	}
	err := s.history.Record(ctx, store.Entry{
		Question:  question,
		Answer:    res.Answer,
		Intent:    res.Intent.String(),
		Outcome:   string(res.Outcome),
		Sources:   sources,
		ElapsedMS: time.Since(start).Milliseconds(),
	})
	if err != nil {
		logging.FromContextOr(ctx, s.log).Warn("qa: failed to record answer", slog.Any("error", err))
	}
}
