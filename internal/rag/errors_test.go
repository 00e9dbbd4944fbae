package rag

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	t.Parallel()

	err := NewError(KindMalformedResponse, "huggingface embedder", nil, "unexpected shape %q", "object")
	wrapped := fmt.Errorf("embedder: batch 2: %w", err)

	if !errors.Is(wrapped, ErrMalformedResponse) {
		t.Error("want errors.Is(ErrMalformedResponse) through wrapping")
	}
	if errors.Is(wrapped, ErrProviderUnavailable) {
		t.Error("different kinds must not match")
	}
	if got := KindOf(wrapped); got != KindMalformedResponse {
		t.Errorf("KindOf = %q, want %q", got, KindMalformedResponse)
	}
	if got := KindOf(io.EOF); got != "" {
		t.Errorf("KindOf(plain error) = %q, want empty", got)
	}
}

func TestError_MessageAndUnwrap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		err   *Error
		want  string
		cause error
	}{
		{
			name:  "cause only",
			err:   NewError(KindProviderUnavailable, "ollama embedder", io.ErrUnexpectedEOF, ""),
			want:  "ollama embedder: provider_unavailable: unexpected EOF",
			cause: io.ErrUnexpectedEOF,
		},
		{
			name:  "message prefixes cause",
			err:   NewError(KindProviderUnavailable, "", io.ErrUnexpectedEOF, "after %d attempts", 3),
			want:  "provider_unavailable: after 3 attempts: unexpected EOF",
			cause: io.ErrUnexpectedEOF,
		},
		{
			name: "message only",
			err:  NewError(KindConfigurationMissing, "huggingface embedder", nil, "HF_API_KEY is not set"),
			want: "huggingface embedder: configuration_missing: HF_API_KEY is not set",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if tt.cause != nil && !errors.Is(tt.err, tt.cause) {
				t.Errorf("want cause %v reachable via Unwrap", tt.cause)
			}
		})
	}
}
