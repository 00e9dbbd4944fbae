// Package answer assembles the grounded prompt for a question and invokes the
// chat-completion collaborator once to produce the answer.
package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/docqa-go/internal/budget"
	"github.com/54b3r/docqa-go/internal/intent"
	"github.com/54b3r/docqa-go/internal/rag"
)

// Completer is the chat-completion capability: one system message and one
// user message in, generated text out.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts an ordinary function to the Completer interface.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

// Complete calls f(ctx, system, user).
func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// Source identifies one chunk that was sent to the model.
type Source struct {
	// ID is the chunk id.
	ID int `json:"id"`
	// Score is the boosted score the chunk was ranked with.
	Score float64 `json:"score"`
}

// Result is the answer text paired with the chunks actually used.
type Result struct {
	// Answer is the model output, verbatim.
	Answer string
	// Sources lists the chunks in the prompt, in ranked order.
	Sources []Source
}

// Config holds the settings for constructing an Answerer.
type Config struct {
	// MaxContextTokens caps the estimated prompt size. Zero uses
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int
	// Logger receives budget warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Answerer turns a question, its intent hint and the reranked chunks into an
// answer with sources.
type Answerer struct {
	// completer generates the answer text.
	completer Completer
	// maxTokens is the prompt budget.
	maxTokens int
	// log receives budget warnings.
	log *slog.Logger
}

// New constructs an Answerer over completer.
func New(completer Completer, cfg *Config) (*Answerer, error) {
	if completer == nil {
		return nil, fmt.Errorf("answer: completer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	a := &Answerer{completer: completer, maxTokens: cfg.MaxContextTokens, log: cfg.Logger}
	if a.maxTokens <= 0 {
		a.maxTokens = budget.DefaultMaxContextTokens
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a, nil
}

// Answer builds the prompt from chunks (already ranked and truncated) and
// calls the completer exactly once. A completion failure is returned as an
// error and no partial answer is produced.
func (a *Answerer) Answer(ctx context.Context, question string, hint intent.Hint, chunks []rag.ScoredChunk) (Result, error) {
	system := SystemPrompt(hint.Intent)
	directive := FormatDirective(hint)

	used := a.fit(system, directive, question, chunks)
	user := UserPrompt(ContextBlock(used), directive, question)

	text, err := a.completer.Complete(ctx, system, user)
	if err != nil {
		if rag.KindOf(err) != "" {
			return Result{}, fmt.Errorf("answer: completion failed: %w", err)
		}
		return Result{}, rag.NewError(rag.KindProviderUnavailable, "answer", err, "completion failed")
	}

	sources := make([]Source, len(used))
	for i, c := range used {
		sources[i] = Source{ID: c.ID, Score: c.Score}
	}
	return Result{Answer: text, Sources: sources}, nil
}

// fit drops the lowest-ranked chunks when the assembled prompt would exceed
// the token budget.
func (a *Answerer) fit(system, directive, question string, chunks []rag.ScoredChunk) []rag.ScoredChunk {
	fixed := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(UserPrompt("", directive, question)),
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = ContextBlock(chunks[i : i+1])
	}

	keep := budget.FitChunks(fixed, texts, a.maxTokens)
	if keep < len(chunks) {
		a.log.Warn("answer: context exceeds token budget, dropping lowest-ranked chunks",
			slog.Int("chunks", len(chunks)),
			slog.Int("kept", keep),
			slog.Int("max_tokens", a.maxTokens),
		)
	}
	return chunks[:keep]
}
