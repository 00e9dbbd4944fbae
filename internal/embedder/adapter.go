// Package embedder turns text into L2-normalized embedding vectors. A raw
// provider Client (HuggingFace, OpenAI/Azure, Ollama) performs one network
// call per request; the Adapter wraps it with batching, retry with linear
// backoff, normalization and a dimension check, and implements rag.Embedder.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Adapter defaults.
const (
	DefaultBatchSize   = 10
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1000 * time.Millisecond
	DefaultConcurrency = 1

	// normEpsilon keeps normalization finite for all-zero vectors.
	normEpsilon = 1e-12
)

// Client is a single-call embedding backend. Embed returns one raw vector per
// input text, in input order. Implementations classify their failures as
// *rag.Error so the Adapter can decide whether to retry.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ClientFunc adapts an ordinary function to the Client interface.
type ClientFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embed calls f(ctx, texts).
func (f ClientFunc) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}

// DelayFunc returns how long to wait before retry number attempt (1-based).
type DelayFunc func(attempt int) time.Duration

// LinearDelay returns a DelayFunc that waits attempt × base.
func LinearDelay(base time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * base
	}
}

// AdapterConfig holds the settings for constructing an Adapter.
type AdapterConfig struct {
	// Model is the embedding model name, used for logging and the dimension table.
	Model string

	// Dimensions is the expected vector width. When zero, the width is
	// learned from the first successful response and Dimensions reports
	// FallbackDimensions until then.
	Dimensions int

	// BatchSize is the maximum number of texts per provider call (default 10).
	BatchSize int

	// MaxAttempts is the number of tries per sub-batch, including the first (default 3).
	MaxAttempts int

	// RetryDelay is the linear backoff base (default 1s). Ignored when Delay is set.
	RetryDelay time.Duration

	// Delay overrides the backoff schedule. Tests inject a zero delay.
	Delay DelayFunc

	// Concurrency caps the number of sub-batches in flight (default 1).
	Concurrency int

	// Logger receives retry warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Adapter implements rag.Embedder on top of a raw Client. It is safe for
// concurrent use.
type Adapter struct {
	// client performs the network calls.
	client Client
	// model is the embedding model name.
	model string
	// dims is the known or learned vector width; zero until learned.
	dims atomic.Int64
	// batchSize is the sub-batch size.
	batchSize int
	// maxAttempts is the per-sub-batch attempt cap.
	maxAttempts int
	// delay is the backoff schedule.
	delay DelayFunc
	// concurrency caps in-flight sub-batches.
	concurrency int
	// log receives retry warnings.
	log *slog.Logger
}

var _ rag.Embedder = (*Adapter)(nil)

// NewAdapter wraps client with batching, retry and normalization.
func NewAdapter(client Client, cfg *AdapterConfig) (*Adapter, error) {
	if client == nil {
		return nil, fmt.Errorf("embedder: client must not be nil")
	}
	if cfg == nil {
		cfg = &AdapterConfig{}
	}

	a := &Adapter{
		client:      client,
		model:       cfg.Model,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		delay:       cfg.Delay,
		concurrency: cfg.Concurrency,
		log:         cfg.Logger,
	}
	if cfg.Dimensions > 0 {
		a.dims.Store(int64(cfg.Dimensions))
	}
	if a.batchSize <= 0 {
		a.batchSize = DefaultBatchSize
	}
	if a.maxAttempts <= 0 {
		a.maxAttempts = DefaultMaxAttempts
	}
	if a.delay == nil {
		base := cfg.RetryDelay
		if base <= 0 {
			base = DefaultRetryDelay
		}
		a.delay = LinearDelay(base)
	}
	if a.concurrency <= 0 {
		a.concurrency = DefaultConcurrency
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a, nil
}

// Model returns the configured embedding model name.
func (a *Adapter) Model() string { return a.model }

// Dimensions returns the vector width this adapter produces.
func (a *Adapter) Dimensions() int {
	if d := a.dims.Load(); d > 0 {
		return int(d)
	}
	return FallbackDimensions
}

// Embed returns the normalized embedding of a single text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch splits texts into sub-batches, embeds each with retry, and
// returns one normalized vector per text in input order. Any sub-batch
// failure fails the whole call and no vectors are returned.
func (a *Adapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for start := 0; start < len(texts); start += a.batchSize {
		end := min(start+a.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := a.embedWithRetry(gctx, texts[start:end], start/a.batchSize)
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embedWithRetry performs one sub-batch call with up to maxAttempts tries.
func (a *Adapter) embedWithRetry(ctx context.Context, batch []string, batchNum int) ([][]float32, error) {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(a.maxAttempts-1), retry.BackoffFunc(func() (time.Duration, bool) { //nolint:gosec // maxAttempts > 0
		attempt++
		return a.delay(attempt), false
	}))

	var result [][]float32
	var lastErr error
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		vecs, err := a.client.Embed(ctx, batch)
		if err == nil {
			vecs, err = a.finish(vecs, len(batch))
		}
		if err != nil {
			lastErr = err
			if retryable(ctx, err) {
				a.log.Warn("embedder: sub-batch attempt failed",
					slog.String("model", a.model),
					slog.Int("batch", batchNum),
					slog.Int("attempt", attempt+1),
					slog.Int("max_attempts", a.maxAttempts),
					slog.String("error", err.Error()),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		result = vecs
		return nil
	})
	if err == nil {
		return result, nil
	}

	// Context cancellation and non-retryable kinds surface as-is.
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return nil, fmt.Errorf("embedder: batch %d: %w", batchNum, err)
	}
	if !retryable(ctx, err) {
		return nil, fmt.Errorf("embedder: batch %d: %w", batchNum, err)
	}
	return nil, rag.NewError(rag.KindProviderUnavailable, "embedder", lastErr,
		"batch %d failed after %d attempts", batchNum, attempt+1)
}

// finish validates the raw vectors of one call and normalizes them in place.
func (a *Adapter) finish(vecs [][]float32, want int) ([][]float32, error) {
	if len(vecs) != want {
		return nil, rag.NewError(rag.KindMalformedResponse, "embedder", nil,
			"expected %d embeddings, got %d", want, len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, rag.NewError(rag.KindMalformedResponse, "embedder", nil, "embedding %d is empty", i)
		}
		if err := a.checkDims(len(v)); err != nil {
			return nil, err
		}
		Normalize(v)
	}
	return vecs, nil
}

// checkDims enforces a fixed width, or learns the width from the first vector.
func (a *Adapter) checkDims(n int) error {
	if a.dims.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := a.dims.Load(); int64(n) != want {
		return rag.NewError(rag.KindMalformedResponse, "embedder", nil,
			"model %q returned dimension %d, expected %d", a.model, n, want)
	}
	return nil
}

// retryable reports whether err is worth another attempt. Transport failures
// (including a single call's own timeout) and unclassified errors are retried.
// Malformed payloads, credential problems and caller cancellation are not.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch rag.KindOf(err) {
	case rag.KindMalformedResponse, rag.KindAuthRejected, rag.KindConfigurationMissing,
		rag.KindInvalidInput, rag.KindDimensionMismatch:
		return false
	default:
		return true
	}
}

// Normalize scales v to unit L2 norm in place.
func Normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	n := math.Sqrt(math.Max(sumSq, normEpsilon))
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
}
