// Package provider selects and constructs the chat-completion backend used to
// compose answers. Supported backends: OpenRouter (default), OpenAI, Azure
// OpenAI, Ollama, Volcengine Ark and Google Gemini, all behind eino's
// BaseChatModel.
package provider

import (
	"fmt"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOpenRouter selects OpenRouter's OpenAI-compatible API.
	BackendOpenRouter Backend = "openrouter"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOpenRouter holds OpenRouter settings.
type ProviderOpenRouter struct {
	// APIKey is read from OPENROUTER_API_KEY.
	APIKey string
	// Model is read from OPENROUTER_MODEL.
	Model string
	// BaseURL is read from OPENROUTER_BASE_URL.
	BaseURL string
}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	// Host is read from OLLAMA_HOST.
	Host string
	// Model is read from OLLAMA_MODEL.
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is read from OPENAI_API_KEY.
	APIKey string
	// Model is read from OPENAI_MODEL.
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is read from AZURE_OPENAI_API_KEY.
	APIKey string
	// Endpoint is read from AZURE_OPENAI_ENDPOINT.
	Endpoint string
	// Deployment is read from AZURE_OPENAI_DEPLOYMENT.
	Deployment string
	// APIVersion is read from AZURE_OPENAI_API_VERSION.
	APIVersion string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	// APIKey is read from ARK_API_KEY.
	APIKey string
	// Model is read from ARK_MODEL (an endpoint id).
	Model string
	// BaseURL is read from ARK_BASE_URL.
	BaseURL string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is read from GOOGLE_API_KEY.
	APIKey string
	// Model is read from GEMINI_MODEL.
	Model string
}

// SharedTuning holds generation parameters applied to every backend that
// supports them.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is read.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	OpenRouter  ProviderOpenRouter
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini

	// Tuning applies to every backend.
	Tuning SharedTuning
}

// Validate checks that the selected backend has every required setting. The
// error names the missing environment variable.
func (c *Config) Validate() error {
	missing := func(name string) error {
		return rag.NewError(rag.KindConfigurationMissing, "provider", nil,
			"%s is required for %s backend", name, c.Backend)
	}

	switch c.Backend {
	case BackendOpenRouter:
		if c.OpenRouter.APIKey == "" {
			return missing("OPENROUTER_API_KEY")
		}
		if c.OpenRouter.Model == "" {
			return missing("OPENROUTER_MODEL")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return missing("OLLAMA_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing("OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return missing("OPENAI_MODEL")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return missing("AZURE_OPENAI_API_KEY")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return missing("AZURE_OPENAI_ENDPOINT")
		}
		if c.AzureOpenAI.Deployment == "" {
			return missing("AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return missing("ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return missing("ARK_MODEL")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return missing("GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return missing("GEMINI_MODEL")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q, valid values: openrouter, ollama, openai, azure, ark, gemini", c.Backend)
	}
	return nil
}

// ModelName returns the model (or deployment) the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOpenRouter:
		return c.OpenRouter.Model
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	default:
		return ""
	}
}
