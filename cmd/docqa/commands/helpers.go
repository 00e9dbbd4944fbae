package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/provider"
	"github.com/54b3r/docqa-go/internal/qa"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// defaultCollection is the Qdrant collection used when QDRANT_COLLECTION is unset.
const defaultCollection = "docqa"

// runtime bundles the collaborators shared by ask, chat and serve.
type runtime struct {
	svc      *qa.Service
	embedder *embedder.Adapter
	model    model.BaseChatModel
	provider *provider.Config
	qdrant   *rag.QdrantIndex
	history  *store.SQLiteStore
	closers  []func()
}

// Close releases everything opened by buildRuntime, last opened first.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// buildRuntime wires a qa.Service from the environment. When persistent is
// true the index is the Qdrant collection named by QDRANT_*; otherwise an
// empty in-memory index is used. The returned runtime must be closed.
func buildRuntime(ctx context.Context, persistent bool, log *slog.Logger) (*runtime, error) {
	rt := &runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	emb, err := buildEmbedder(log)
	if err != nil {
		return nil, err
	}
	rt.embedder = emb

	chatModel, providerCfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	rt.model, rt.provider = chatModel, providerCfg
	log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	var index rag.Index
	if persistent {
		qi, err := openQdrant(ctx, emb.Dimensions(), log)
		if err != nil {
			return nil, err
		}
		rt.qdrant = qi
		rt.closers = append(rt.closers, func() { _ = qi.Close() })
		index = qi
	} else {
		index = rag.NewMemoryIndex(0)
	}

	deps := qa.Deps{
		Index:     index,
		Embedder:  emb,
		Completer: provider.NewChatCompleter(chatModel, string(providerCfg.Backend)),
	}
	if hs := openHistory(log); hs != nil {
		rt.history = hs
		rt.closers = append(rt.closers, func() { _ = hs.Close() })
		deps.History = hs
	}

	cfg := qaConfigFromEnv()
	cfg.Logger = log
	svc, err := qa.New(deps, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise service: %w", err)
	}
	rt.svc = svc
	ok = true
	return rt, nil
}

// buildEmbedder validates the embedding configuration and constructs the
// adapter selected by EMBEDDING_PROVIDER.
func buildEmbedder(log *slog.Logger) (*embedder.Adapter, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err //nolint:wrapcheck // already carries the embedder prefix
	}
	emb, err := embedder.NewFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised",
		slog.String("provider", embedder.ResolveBackend()),
		slog.String("model", emb.Model()),
		slog.Int("dimensions", emb.Dimensions()),
	)
	return emb, nil
}

// qdrantConfigured reports whether QDRANT_HOST is set.
func qdrantConfigured() bool {
	return os.Getenv("QDRANT_HOST") != ""
}

// openQdrant connects to the collection named by QDRANT_* with the given
// vector width.
func openQdrant(ctx context.Context, dims int, log *slog.Logger) (*rag.QdrantIndex, error) {
	cfg := &rag.QdrantConfig{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", defaultCollection),
		VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	}
	idx, err := rag.NewQdrantIndex(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	log.Info("qdrant index ready",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.String("collection", cfg.Collection),
	)
	return idx, nil
}

// openHistory opens the ask log. DOCQA_HISTORY_DB overrides the default path
// (~/.docqa/history.db); "disabled" turns recording off. Failures are
// logged and disable history rather than aborting the command.
func openHistory(log *slog.Logger) *store.SQLiteStore {
	dbPath := os.Getenv("DOCQA_HISTORY_DB")
	if dbPath == "disabled" {
		log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
		dbPath = p
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("history: store opened", slog.String("path", dbPath))
	return hs
}

// qaConfigFromEnv reads the RAG_* tunables. Unset values keep the service
// defaults; a boost set to 0 is turned off.
func qaConfigFromEnv() *qa.Config {
	rerank := rag.DefaultRerankConfig()
	rerank.OversampleFactor = getEnvInt("RAG_OVERSAMPLE_FACTOR", rerank.OversampleFactor)
	rerank.SectionBoost = getEnvFloat("RAG_SECTION_BOOST", rerank.SectionBoost)
	rerank.IntroBoost = getEnvFloat("RAG_INTRO_BOOST", rerank.IntroBoost)
	rerank.TermBoost = getEnvFloat("RAG_TERM_BOOST", rerank.TermBoost)

	return &qa.Config{
		TopK:             getEnvInt("RAG_TOP_K", 0),
		MinScore:         getEnvFloat("RAG_MIN_SCORE", 0),
		ChunkSize:        getEnvInt("RAG_CHUNK_SIZE", 0),
		ChunkOverlap:     getEnvInt("RAG_CHUNK_OVERLAP", 0),
		MaxContextTokens: getEnvInt("RAG_MAX_CONTEXT_TOKENS", 0),
		Rerank:           &rerank,
	}
}

// indexDocument loads path and replaces the service's index with its chunks.
func indexDocument(ctx context.Context, svc *qa.Service, path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	text, err := ingestion.LoadText(path, f)
	if err != nil {
		return err //nolint:wrapcheck // names the file already
	}
	report, err := svc.IngestText(ctx, text, ingestion.ModeReplace)
	if err != nil {
		return fmt.Errorf("index %s: %w", path, err)
	}
	log.Info("document indexed",
		slog.String("file", path),
		slog.Int("chunks", report.Chunks),
		slog.Duration("duration", report.Elapsed),
	)
	return nil
}

// getEnvOrDefault returns the value of the environment variable key, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of key, or fallback when unset or
// unparsable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the float value of key, or fallback when unset or
// unparsable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
