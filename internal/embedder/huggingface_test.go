package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/54b3r/docqa-go/internal/rag"
)

func TestParseVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    int // number of vectors; -1 means error
		wantDim int
	}{
		{"flat array", `[0.1, 0.2, 0.3]`, 1, 3},
		{"array of arrays", `[[0.1, 0.2], [0.3, 0.4], [0.5, 0.6]]`, 3, 2},
		{"whitespace", "  \n[1, 2]\n", 1, 2},
		{"object", `{"error": "Model is loading"}`, -1, 0},
		{"empty array", `[]`, -1, 0},
		{"token-level 3d", `[[[0.1, 0.2]]]`, -1, 0},
		{"strings", `["a", "b"]`, -1, 0},
		{"empty body", ``, -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseVectors([]byte(tt.body))
			if tt.want < 0 {
				if err == nil {
					t.Errorf("want error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVectors: %v", err)
			}
			if len(got) != tt.want || len(got[0]) != tt.wantDim {
				t.Errorf("got %d vectors of dim %d, want %d of dim %d", len(got), len(got[0]), tt.want, tt.wantDim)
			}
		})
	}
}

// hfServer captures the last request body and replies with status and body.
func hfServer(t *testing.T, status int, body string, gotInputs *any, gotAuth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			*gotAuth = r.Header.Get("Authorization")
		}
		if gotInputs != nil {
			raw, _ := io.ReadAll(r.Body)
			var req struct {
				Inputs any `json:"inputs"`
			}
			_ = json.Unmarshal(raw, &req)
			*gotInputs = req.Inputs
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHuggingFaceClient_SingleTextSentAsString(t *testing.T) {
	t.Parallel()

	var inputs any
	var auth string
	srv := hfServer(t, http.StatusOK, `[0.6, 0.8]`, &inputs, &auth)
	c := NewHuggingFaceClient(&HuggingFaceConfig{BaseURL: srv.URL, APIKey: "hf_test", Model: "m"})

	vecs, err := c.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if s, ok := inputs.(string); !ok || s != "hello" {
		t.Errorf("inputs = %#v, want string %q", inputs, "hello")
	}
	if auth != "Bearer hf_test" {
		t.Errorf("Authorization = %q", auth)
	}
	if len(vecs) != 1 || len(vecs[0]) != 2 {
		t.Errorf("got %v", vecs)
	}
}

func TestHuggingFaceClient_BatchSentAsArray(t *testing.T) {
	t.Parallel()

	var inputs any
	srv := hfServer(t, http.StatusOK, `[[1, 0], [0, 1]]`, &inputs, nil)
	c := NewHuggingFaceClient(&HuggingFaceConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})

	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	arr, ok := inputs.([]any)
	if !ok || len(arr) != 2 {
		t.Errorf("inputs = %#v, want 2-element array", inputs)
	}
	if len(vecs) != 2 {
		t.Errorf("want 2 vectors, got %d", len(vecs))
	}
}

func TestHuggingFaceClient_ErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid token"}`, rag.ErrAuthRejected},
		{"forbidden", http.StatusForbidden, `{"error":"no access"}`, rag.ErrAuthRejected},
		{"loading", http.StatusServiceUnavailable, `{"error":"Model is loading"}`, rag.ErrProviderUnavailable},
		{"server error", http.StatusInternalServerError, `oops`, rag.ErrProviderUnavailable},
		{"malformed", http.StatusOK, `{"vectors": []}`, rag.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := hfServer(t, tt.status, tt.body, nil, nil)
			c := NewHuggingFaceClient(&HuggingFaceConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
			_, err := c.Embed(context.Background(), []string{"x"})
			if !errors.Is(err, tt.want) {
				t.Errorf("want %v, got %v", tt.want, err)
			}
		})
	}
}

func TestHuggingFaceClient_MissingKeyFailsWithoutCalling(t *testing.T) {
	t.Parallel()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewHuggingFaceClient(&HuggingFaceConfig{BaseURL: srv.URL, Model: "m"})
	_, err := c.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, rag.ErrConfigurationMissing) {
		t.Errorf("want ErrConfigurationMissing, got %v", err)
	}
	if called {
		t.Error("unauthenticated request must not be sent")
	}
}

func TestHuggingFaceClient_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHuggingFaceClient(&HuggingFaceConfig{BaseURL: url, APIKey: "k", Model: "m"})
	_, err := c.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, rag.ErrProviderUnavailable) {
		t.Errorf("want ErrProviderUnavailable, got %v", err)
	}
}

// TestHuggingFaceClient_ThroughAdapter checks the adapter retries a 503 and
// then succeeds against the real wire client.
func TestHuggingFaceClient_ThroughAdapter(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":"Model is loading"}`)
			return
		}
		_, _ = io.WriteString(w, `[3, 4]`)
	}))
	defer srv.Close()

	c := NewHuggingFaceClient(&HuggingFaceConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	a := newTestAdapter(t, c, &AdapterConfig{})

	v, err := a.Embed(context.Background(), "x")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls != 2 {
		t.Errorf("want 2 calls, got %d", calls)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("want normalized [0.6 0.8], got %v", v)
	}
}
