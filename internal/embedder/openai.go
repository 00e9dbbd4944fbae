package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/54b3r/docqa-go/internal/rag"
)

// OpenAIClient calls the OpenAI (or Azure OpenAI) embeddings API through the
// go-openai SDK. It is safe for concurrent use.
type OpenAIClient struct {
	// client is the SDK client configured for OpenAI or Azure.
	client *openai.Client
	// model is the embedding model (or Azure deployment) name.
	model string
	// dimensions is the requested vector length (0 = model default).
	dimensions int
	// op names the backend in errors.
	op string
}

// OpenAIConfig holds the settings for constructing an OpenAIClient.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version (e.g. "2025-04-01-preview").
	// Ignored when Azure is false.
	APIVersion string
}

// NewOpenAIClient constructs an OpenAIClient from the given config.
func NewOpenAIClient(cfg *OpenAIConfig) *OpenAIClient {
	var sdkCfg openai.ClientConfig
	op := "openai embedder"
	if cfg.Azure {
		sdkCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			sdkCfg.APIVersion = cfg.APIVersion
		}
		// Deployments are named after the model.
		model := cfg.Model
		sdkCfg.AzureModelMapperFunc = func(string) string { return model }
		op = "azure embedder"
	} else {
		sdkCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			sdkCfg.BaseURL = cfg.BaseURL
		}
	}
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(sdkCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		op:         op,
	}
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, c.classify(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, rag.NewError(rag.KindMalformedResponse, c.op, nil,
			"expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// The API may return data out of order; place by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, rag.NewError(rag.KindMalformedResponse, c.op, nil,
				"index %d out of range [0, %d)", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}

// classify maps SDK errors onto rag error kinds.
func (c *OpenAIClient) classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return rag.NewError(rag.KindAuthRejected, c.op, err, "HTTP %d", status)
	case status != 0:
		return rag.NewError(rag.KindProviderUnavailable, c.op, err, "HTTP %d", status)
	default:
		return rag.NewError(rag.KindProviderUnavailable, c.op, fmt.Errorf("request failed: %w", err), "")
	}
}
