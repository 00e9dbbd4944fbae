package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// ValidateForRAG checks that the embedding configuration can work before any
// document is indexed. It returns an error when a required credential is
// missing for the resolved backend, and logs a warning if EMBEDDING_MODEL
// looks like a chat model rather than an embedding model.
//
// This is a pre-flight check: call it at startup so operators get a clear
// error instead of a failure on the first reindex or question.
func ValidateForRAG(log *slog.Logger) error {
	backend := ResolveBackend()

	switch backend {
	case "huggingface", "hf":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("HF_API_KEY") == "" {
			return rag.NewError(rag.KindConfigurationMissing, "embedder", nil,
				"no HuggingFace token found, set HF_API_KEY or EMBEDDING_API_KEY")
		}

	case "openai":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
			return rag.NewError(rag.KindConfigurationMissing, "embedder", nil,
				"no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}

	case "azure":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("AZURE_OPENAI_API_KEY") == "" {
			return rag.NewError(rag.KindConfigurationMissing, "embedder", nil,
				"no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if os.Getenv("EMBEDDING_ENDPOINT") == "" && os.Getenv("AZURE_OPENAI_ENDPOINT") == "" {
			return rag.NewError(rag.KindConfigurationMissing, "embedder", nil,
				"no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}

	case "ollama":

	default:
		return fmt.Errorf("embedder: unknown backend %q, valid values: huggingface, openai, azure, ollama", backend)
	}

	model := os.Getenv("EMBEDDING_MODEL")
	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
			"this will likely produce poor or broken embeddings",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. sentence-transformers/all-MiniLM-L6-v2, intfloat/multilingual-e5-large"),
		)
	}
	if model != "" {
		if _, known := Dimensions(model); !known && os.Getenv("EMBEDDING_DIMENSIONS") == "" {
			log.Info("embedder: model width not in table, it will be learned from the first response",
				slog.String("model", model),
			)
		}
	}

	return nil
}
