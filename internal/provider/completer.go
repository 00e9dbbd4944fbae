package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"

	"github.com/54b3r/docqa-go/internal/rag"
)

// ChatCompleter adapts an eino chat model to the single-shot
// Complete(system, user) capability used by answer assembly. Completion
// calls are not retried.
type ChatCompleter struct {
	// model generates the response.
	model model.BaseChatModel
	// name identifies the backend in errors.
	name string
}

// NewChatCompleter wraps m. name labels the backend in errors.
func NewChatCompleter(m model.BaseChatModel, name string) *ChatCompleter {
	return &ChatCompleter{model: m, name: name}
}

// Complete sends one system and one user message and returns the reply text.
func (c *ChatCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	resp, err := c.model.Generate(ctx, msgs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("provider: %s generate: %w", c.name, err)
		}
		return "", classifyGenerate("provider "+c.name, err)
	}
	if resp == nil {
		return "", rag.NewError(rag.KindMalformedResponse, "provider "+c.name, nil, "generate returned nil response")
	}
	return resp.Content, nil
}

// statusInMessageRe finds an HTTP status in error text. The eino backends
// wrap their SDK errors with %v or in forked SDK types, so the status code
// often survives only in the message ("status code: 401", "Error 403,").
var statusInMessageRe = regexp.MustCompile(`(?i)(?:status(?:\s+code)?[:=]?\s*|error\s+|http\s+)(\d{3})\b`)

// classifyGenerate maps a chat-model error to an error kind. Rejected
// credentials are AuthRejected so callers can tell them from an outage.
func classifyGenerate(op string, err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		if m := statusInMessageRe.FindStringSubmatch(err.Error()); m != nil {
			status, _ = strconv.Atoi(m[1])
		}
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return rag.NewError(rag.KindAuthRejected, op, err, "HTTP %d", status)
	case 0:
		return rag.NewError(rag.KindProviderUnavailable, op, err, "generate failed")
	default:
		return rag.NewError(rag.KindProviderUnavailable, op, err, "generate failed: HTTP %d", status)
	}
}
