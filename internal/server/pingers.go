package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/docqa-go/internal/provider"
)

// LLMPinger probes the chat-completion backend. It satisfies the Pinger
// interface and is used by GET /api/ready.
type LLMPinger struct {
	// model is probed with a one-token Generate when no healthCheck exists.
	model model.BaseChatModel
	// healthCheck is a zero-cost probe (model listing); preferred when set.
	healthCheck provider.HealthCheckConfig
	// name identifies the backend in readiness responses (e.g. "openrouter").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
// hc may be nil for backends without a cheap listing endpoint.
func NewLLMPinger(m model.BaseChatModel, hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{model: m, healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend for readiness. When a zero-cost HealthCheckConfig
// is available it is used exclusively; otherwise it falls back to a single
// Generate call, which consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := p.healthCheck.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return errors.New("no model configured")
	}

	slog.Warn("pinger: falling back to Generate-based health check, tokens will be consumed",
		slog.String("backend", p.name),
	)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return errors.New("generate returned nil response")
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	_, err := p.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// HistoryPinger probes the ask-history database.
type HistoryPinger struct {
	// ping checks the database connection.
	ping func(ctx context.Context) error
}

// NewHistoryPinger constructs a HistoryPinger from a ping function such as
// (*store.SQLiteStore).Ping.
func NewHistoryPinger(ping func(ctx context.Context) error) *HistoryPinger {
	return &HistoryPinger{ping: ping}
}

// Name returns the dependency label used in readiness responses.
func (p *HistoryPinger) Name() string { return "history" }

// Ping checks the database connection.
func (p *HistoryPinger) Ping(ctx context.Context) error {
	if err := p.ping(ctx); err != nil {
		return fmt.Errorf("history database unreachable: %w", err)
	}
	return nil
}
