package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultHuggingFaceModel = "sentence-transformers/all-MiniLM-L6-v2"
	defaultOllamaModel      = "nomic-embed-text"
	defaultOpenAIModel      = "text-embedding-3-small"

	// FallbackDimensions is reported for models missing from the table until
	// the first response fixes the real width.
	FallbackDimensions = 768
)

// modelDimensions maps a model-name fragment to its output width. The first
// matching fragment wins, so longer fragments come before their prefixes.
var modelDimensions = []struct {
	fragment string
	dims     int
}{
	{"multilingual-e5-large", 1024},
	{"e5-large", 1024},
	{"e5-base", 768},
	{"e5-small", 384},
	{"all-minilm-l12-v2", 384},
	{"all-minilm-l6-v2", 384},
	{"paraphrase-multilingual-minilm-l12-v2", 384},
	{"all-mpnet-base-v2", 768},
	{"bge-m3", 1024},
	{"bge-large", 1024},
	{"bge-small", 384},
	{"text-embedding-3-large", 3072},
	{"text-embedding-3-small", 1536},
	{"text-embedding-ada-002", 1536},
	{"nomic-embed-text", 768},
	{"mxbai-embed-large", 1024},
}

// Dimensions returns the known output width of model. ok is false when the
// model is not in the table, in which case dims is FallbackDimensions.
func Dimensions(model string) (dims int, ok bool) {
	lower := strings.ToLower(model)
	for _, m := range modelDimensions {
		if strings.Contains(lower, m.fragment) {
			return m.dims, true
		}
	}
	return FallbackDimensions, false
}

// ResolveBackend returns the effective embedding backend name.
func ResolveBackend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", "huggingface")
}

// NewFromEnv constructs an Adapter over the backend selected by the
// environment.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER: huggingface (default), openai, azure, ollama
//  2. EMBEDDING_MODEL overrides the backend's default model
//  3. EMBEDDING_API_KEY overrides the backend's own key variable
//  4. EMBEDDING_ENDPOINT overrides the backend's endpoint
//  5. EMBEDDING_DIMENSIONS overrides the dimension table
//  6. EMBEDDING_BATCH_SIZE, EMBEDDING_MAX_ATTEMPTS, EMBEDDING_RETRY_DELAY_MS
//     and EMBEDDING_CONCURRENCY tune the Adapter
//
// A missing HuggingFace key is not an error here; it fails the first call.
func NewFromEnv(log *slog.Logger) (*Adapter, error) {
	client, model, err := newClientFromEnv(ResolveBackend())
	if err != nil {
		return nil, err
	}

	dims, known := Dimensions(model)
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		dims, known = v, true
	}
	if !known {
		dims = 0
	}

	return NewAdapter(client, &AdapterConfig{
		Model:       model,
		Dimensions:  dims,
		BatchSize:   getEnvInt("EMBEDDING_BATCH_SIZE", DefaultBatchSize),
		MaxAttempts: getEnvInt("EMBEDDING_MAX_ATTEMPTS", DefaultMaxAttempts),
		RetryDelay:  time.Duration(getEnvInt("EMBEDDING_RETRY_DELAY_MS", int(DefaultRetryDelay/time.Millisecond))) * time.Millisecond,
		Concurrency: getEnvInt("EMBEDDING_CONCURRENCY", DefaultConcurrency),
		Logger:      log,
	})
}

// newClientFromEnv builds the raw Client for backend and returns it with the
// resolved model name.
func newClientFromEnv(backend string) (Client, string, error) {
	switch backend {
	case "huggingface", "hf":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("HF_API_KEY")
		}
		model := getEnvOrDefault("EMBEDDING_MODEL", defaultHuggingFaceModel)
		return NewHuggingFaceClient(&HuggingFaceConfig{
			BaseURL: getEnv("EMBEDDING_ENDPOINT"),
			APIKey:  apiKey,
			Model:   model,
		}), model, nil

	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		model := getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
		return NewOllamaClient(&OllamaConfig{Host: host, Model: model}), model, nil

	case "openai":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, "", rag.NewError(rag.KindConfigurationMissing, "embedder", nil,
				"openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		model := getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		return NewOpenAIClient(&OpenAIConfig{
			BaseURL:    getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), model, nil

	case "azure":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, "", rag.NewError(rag.KindConfigurationMissing, "embedder", nil,
				"azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := getEnv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, "", rag.NewError(rag.KindConfigurationMissing, "embedder", nil,
				"azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		model := getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		return NewOpenAIClient(&OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      model,
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), model, nil

	default:
		return nil, "", fmt.Errorf("embedder: unknown backend %q, valid values: huggingface, openai, azure, ollama", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
