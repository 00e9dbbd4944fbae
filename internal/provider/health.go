package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HealthCheckConfig is a zero-cost readiness probe for a backend: it checks
// reachability and credentials without generating tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}

// httpHealthCheck issues a GET against a cheap listing endpoint.
type httpHealthCheck struct {
	// url is the probe target.
	url string
	// header is set on the request when non-empty (e.g. Authorization).
	header, value string
	// client performs the probe.
	client *http.Client
}

// HealthCheck returns nil when the endpoint answers 2xx.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if h.header != "" {
		req.Header.Set(h.header, h.value)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, h.url)
	}
	return nil
}

// NewHealthCheck returns a zero-cost probe for the configured backend, or nil
// when the backend has no cheap endpoint (callers then fall back to a
// one-token Generate).
func NewHealthCheck(cfg *Config) HealthCheckConfig {
	client := &http.Client{Timeout: 5 * time.Second}
	switch cfg.Backend {
	case BackendOpenRouter:
		return &httpHealthCheck{
			url:    strings.TrimSuffix(cfg.OpenRouter.BaseURL, "/") + "/models",
			header: "Authorization", value: "Bearer " + cfg.OpenRouter.APIKey,
			client: client,
		}
	case BackendOpenAI:
		return &httpHealthCheck{
			url:    "https://api.openai.com/v1/models",
			header: "Authorization", value: "Bearer " + cfg.OpenAI.APIKey,
			client: client,
		}
	case BackendOllama:
		return &httpHealthCheck{
			url:    strings.TrimSuffix(cfg.Ollama.Host, "/") + "/api/tags",
			client: client,
		}
	default:
		return nil
	}
}
