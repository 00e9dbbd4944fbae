package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// DefaultHuggingFaceBaseURL is the HuggingFace inference router prefix; the
// model name is appended to it.
const DefaultHuggingFaceBaseURL = "https://router.huggingface.co/hf-inference/models/"

// maxErrorBody caps how much of a failed response body is kept in the error.
const maxErrorBody = 512

// HuggingFaceClient calls the HuggingFace feature-extraction endpoint. It is
// safe for concurrent use.
type HuggingFaceClient struct {
	// baseURL is the router prefix the model name is appended to.
	baseURL string
	// apiKey is the Bearer token. Empty fails the first call.
	apiKey string
	// model is the model repository id (e.g. "sentence-transformers/all-MiniLM-L6-v2").
	model string
	// client is the shared HTTP client with a per-call timeout.
	client *http.Client
}

// HuggingFaceConfig holds the settings for constructing a HuggingFaceClient.
type HuggingFaceConfig struct {
	// BaseURL overrides DefaultHuggingFaceBaseURL (tests point it at httptest).
	BaseURL string
	// APIKey is the HuggingFace access token.
	APIKey string
	// Model is the model repository id.
	Model string
	// Timeout bounds a single call (default 30s).
	Timeout time.Duration
}

// NewHuggingFaceClient constructs a HuggingFaceClient from the given config.
func NewHuggingFaceClient(cfg *HuggingFaceConfig) *HuggingFaceClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultHuggingFaceBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HuggingFaceClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
	}
}

// hfRequest is the JSON body sent to the feature-extraction endpoint.
// Inputs is a string for a single text and an array otherwise.
type hfRequest struct {
	Inputs any `json:"inputs"`
}

// Embed sends texts in one request and parses the returned vectors.
func (c *HuggingFaceClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "huggingface embedder"

	if c.apiKey == "" {
		return nil, rag.NewError(rag.KindConfigurationMissing, op, nil, "HF_API_KEY is not set")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	body := hfRequest{Inputs: texts}
	if len(texts) == 1 {
		body.Inputs = texts[0]
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.model, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, rag.NewError(rag.KindProviderUnavailable, op, err, "request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, rag.NewError(rag.KindProviderUnavailable, op, err, "read response")
	}

	if err := statusError(op, resp.StatusCode, raw); err != nil {
		return nil, err
	}

	vecs, err := ParseVectors(raw)
	if err != nil {
		return nil, rag.NewError(rag.KindMalformedResponse, op, err, "")
	}
	return vecs, nil
}

// ParseVectors decodes an embedding response body. A flat numeric array is a
// single vector; an array of numeric arrays is a batch. Any other shape is
// an error.
func ParseVectors(raw []byte) ([][]float32, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("response is not a JSON array: %s", snippet(trimmed))
	}

	var batch [][]float32
	if err := json.Unmarshal(trimmed, &batch); err == nil {
		if len(batch) == 0 {
			return nil, fmt.Errorf("response is an empty array")
		}
		return batch, nil
	}

	var single []float32
	if err := json.Unmarshal(trimmed, &single); err == nil {
		if len(single) == 0 {
			return nil, fmt.Errorf("response is an empty array")
		}
		return [][]float32{single}, nil
	}

	return nil, fmt.Errorf("response is neither a vector nor an array of vectors: %s", snippet(trimmed))
}

// statusError classifies a non-2xx response. 401 and 403 mean the credential
// was refused; everything else is treated as the provider being unavailable.
func statusError(op string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return rag.NewError(rag.KindAuthRejected, op, nil, "HTTP %d: %s", status, snippet(body))
	default:
		return rag.NewError(rag.KindProviderUnavailable, op, nil, "HTTP %d: %s", status, snippet(body))
	}
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
