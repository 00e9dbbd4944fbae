package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/intent"
	"github.com/54b3r/docqa-go/internal/qa"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// fakeService is a test double for the service interface.
type fakeService struct {
	mu sync.Mutex

	askResult qa.Result
	askErr    error
	ingestErr error
	clearErr  error
	statsErr  error
	history   []store.Entry
	noHistory bool

	lastQuestion string
	lastChunks   []string
	lastText     string
	lastMode     ingestion.Mode
	lastLimit    int
	cleared      bool
	size         int
}

func (f *fakeService) Ask(_ context.Context, q string) (qa.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuestion = q
	return f.askResult, f.askErr
}

func (f *fakeService) Ingest(_ context.Context, chunks []string, mode ingestion.Mode) (ingestion.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ingestErr != nil {
		return ingestion.Report{}, f.ingestErr
	}
	f.lastChunks, f.lastMode = chunks, mode
	if mode == ingestion.ModeReplace {
		f.size = 0
	}
	f.size += len(chunks)
	return ingestion.Report{Chunks: len(chunks), Vectors: f.size, Elapsed: 5 * time.Millisecond}, nil
}

func (f *fakeService) IngestText(ctx context.Context, text string, mode ingestion.Mode) (ingestion.Report, error) {
	f.mu.Lock()
	f.lastText = text
	f.mu.Unlock()
	if strings.TrimSpace(text) == "" {
		return ingestion.Report{}, rag.NewError(rag.KindInvalidInput, "ingest", nil, "document is empty")
	}
	return f.Ingest(ctx, strings.Split(text, "\n\n"), mode)
}

func (f *fakeService) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	f.size = 0
	return nil
}

func (f *fakeService) Stats(_ context.Context) (qa.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statsErr != nil {
		return qa.Stats{}, f.statsErr
	}
	return qa.Stats{Size: f.size, Dimensions: 384}, nil
}

func (f *fakeService) History(_ context.Context, n int) ([]store.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit = n
	return f.history, nil
}

func (f *fakeService) HistoryEnabled() bool { return !f.noHistory }

// newTestServer builds a Server over a fakeService with an isolated metrics
// registry and the full route table.
func newTestServer() *Server {
	s, _ := newTestServerWith(&fakeService{}, &Config{})
	return s
}

// newTestServerWith wires svc and cfg the same way New does, without
// requiring a concrete *qa.Service.
func newTestServerWith(svc service, cfg *Config) (*Server, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = time.Minute
	}
	if cfg.ReindexTimeout == 0 {
		cfg.ReindexTimeout = time.Minute
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	log := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s := &Server{
		svc:     svc,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}
	rps, burst := cfg.RateLimit, cfg.RateBurst
	if rps == 0 {
		rps, burst = 1000, 1000
	}
	rl, stop := newRateLimiter(rps, burst, s.metrics.rateLimited)
	s.stopRL = sync.OnceFunc(stop)
	s.httpServer = &http.Server{Handler: s.routes(rl)}
	return s, reg
}

// do sends req through the fully wired handler.
func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	t.Cleanup(s.stopRL)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func jsonRequest(method, path string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func Test_HandleAsk_ReturnsResult(t *testing.T) {
	t.Parallel()

	svc := &fakeService{askResult: qa.Result{
		Answer:  "X is Y.",
		Sources: []answer.Source{{ID: 0, Score: 0.9}},
		Intent:  intent.Define,
		Outcome: qa.OutcomeAnswered,
	}}
	s, _ := newTestServerWith(svc, &Config{})

	w := do(t, s, jsonRequest(http.MethodPost, "/api/rag/ask", askRequest{Question: "What is X?"}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["answer"] != "X is Y." {
		t.Errorf("answer: got %v", body["answer"])
	}
	if body["intent"] != "DEFINE" {
		t.Errorf("intent: got %v", body["intent"])
	}
	if body["outcome"] != "answered" {
		t.Errorf("outcome: got %v", body["outcome"])
	}
	if svc.lastQuestion != "What is X?" {
		t.Errorf("question not forwarded: %q", svc.lastQuestion)
	}
}

func Test_HandleAsk_BadRequests(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"question":`},
		{"blank question", `{"question":"   "}`},
		{"missing question", `{}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer()
			req := httptest.NewRequest(http.MethodPost, "/api/rag/ask", strings.NewReader(tc.body))
			w := do(t, s, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func Test_HandleAsk_ProviderFailureIsBadGateway(t *testing.T) {
	t.Parallel()

	svc := &fakeService{askErr: rag.NewError(rag.KindProviderUnavailable, "embed", errors.New("503"), "embedding failed")}
	s, _ := newTestServerWith(svc, &Config{})

	w := do(t, s, jsonRequest(http.MethodPost, "/api/rag/ask", askRequest{Question: "q"}))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Kind != string(rag.KindProviderUnavailable) {
		t.Errorf("kind: got %q", body.Kind)
	}
}

func Test_HandleReindex_JSONChunks(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	s, _ := newTestServerWith(svc, &Config{})

	w := do(t, s, jsonRequest(http.MethodPost, "/api/rag/reindex", reindexRequest{Chunks: []string{"a", "b", "c"}}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp reindexResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Chunks != 3 || resp.Vectors != 3 {
		t.Errorf("got %+v", resp)
	}
	if svc.lastMode != ingestion.ModeReplace {
		t.Errorf("default mode: got %q", svc.lastMode)
	}
}

func Test_HandleReindex_AppendMode(t *testing.T) {
	t.Parallel()

	svc := &fakeService{size: 2}
	s, _ := newTestServerWith(svc, &Config{})

	w := do(t, s, jsonRequest(http.MethodPost, "/api/rag/reindex?mode=append", reindexRequest{Chunks: []string{"c"}}))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp reindexResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.Vectors != 3 {
		t.Errorf("append should keep existing chunks, vectors=%d", resp.Vectors)
	}
}

func Test_HandleReindex_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"unknown mode", "/api/rag/reindex?mode=merge", reindexRequest{Chunks: []string{"a"}}, http.StatusBadRequest},
		{"text and chunks", "/api/rag/reindex", reindexRequest{Text: "t", Chunks: []string{"a"}}, http.StatusBadRequest},
		{"empty text", "/api/rag/reindex", reindexRequest{}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := newTestServer()
			w := do(t, s, jsonRequest(http.MethodPost, tc.path, tc.body))
			if w.Code != tc.want {
				t.Errorf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func Test_HandleReindex_TooLarge(t *testing.T) {
	t.Parallel()

	s, _ := newTestServerWith(&fakeService{}, &Config{MaxUploadBytes: 32})
	big := strings.Repeat("x", 256)

	w := do(t, s, jsonRequest(http.MethodPost, "/api/rag/reindex", reindexRequest{Text: big}))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

func Test_HandleReindex_MultipartUpload(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	s, _ := newTestServerWith(svc, &Config{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte("first passage\n\nsecond passage"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/rag/reindex", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(t, s, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(svc.lastText, "second passage") {
		t.Errorf("uploaded text not forwarded: %q", svc.lastText)
	}
}

func Test_HandleReindex_MultipartTooLarge(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	s, _ := newTestServerWith(svc, &Config{MaxUploadBytes: 256})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "big.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte(strings.Repeat("x", 4096)))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/rag/reindex", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(t, s, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
	if svc.lastText != "" {
		t.Error("oversized upload must not reach the service")
	}
}

func Test_HandleReindex_MultipartMissingFile(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	_ = mw.Close()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/rag/reindex", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(t, s, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func Test_HandleClearAndStats(t *testing.T) {
	t.Parallel()

	svc := &fakeService{size: 7}
	s, _ := newTestServerWith(svc, &Config{EmbeddingModel: "sentence-transformers/all-MiniLM-L6-v2"})

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/rag/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", w.Code)
	}
	var st statsResponse
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Size != 7 || st.Dimensions != 384 || st.EmbeddingModel == "" {
		t.Errorf("stats: got %+v", st)
	}

	w = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/rag/clear", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear: expected 204, got %d", w.Code)
	}
	if !svc.cleared {
		t.Error("clear not forwarded to service")
	}
}

func Test_HandleHistory(t *testing.T) {
	t.Parallel()

	t.Run("default limit", func(t *testing.T) {
		t.Parallel()
		svc := &fakeService{history: []store.Entry{{ID: 1, Question: "q", Outcome: "answered"}}}
		s, _ := newTestServerWith(svc, &Config{})
		w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/rag/history", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if svc.lastLimit != defaultHistoryLimit {
			t.Errorf("limit: got %d", svc.lastLimit)
		}
		var resp historyResponse
		_ = json.NewDecoder(w.Body).Decode(&resp)
		if len(resp.Entries) != 1 {
			t.Errorf("entries: got %d", len(resp.Entries))
		}
	})

	t.Run("limit capped", func(t *testing.T) {
		t.Parallel()
		svc := &fakeService{}
		s, _ := newTestServerWith(svc, &Config{})
		w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/rag/history?limit=5000", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if svc.lastLimit != maxHistoryLimit {
			t.Errorf("limit: got %d", svc.lastLimit)
		}
		if !strings.Contains(w.Body.String(), `"entries":[]`) {
			t.Errorf("want empty array, got %s", w.Body.String())
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		t.Parallel()
		s := newTestServer()
		w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/rag/history?limit=-1", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		s, _ := newTestServerWith(&fakeService{noHistory: true}, &Config{})
		w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/rag/history", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", w.Code)
		}
	})
}

func Test_Routes_RequireAuthWhenKeySet(t *testing.T) {
	t.Parallel()

	s, _ := newTestServerWith(&fakeService{}, &Config{APIKey: "secret"})

	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/rag/stats", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("stats without token: expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rag/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = do(t, s, req)
	if w.Code != http.StatusOK {
		t.Errorf("stats with token: expected 200, got %d", w.Code)
	}

	w = do(t, s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health must stay open: got %d", w.Code)
	}
}

func Test_Routes_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := do(t, s, httptest.NewRequest(http.MethodGet, "/api/rag/ask", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func Test_StatusFor(t *testing.T) {
	t.Parallel()

	kindErr := func(k rag.ErrorKind) error {
		return fmt.Errorf("wrapped: %w", rag.NewError(k, "op", nil, "failed"))
	}
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", kindErr(rag.KindInvalidInput), http.StatusBadRequest},
		{"configuration missing", kindErr(rag.KindConfigurationMissing), http.StatusServiceUnavailable},
		{"provider unavailable", kindErr(rag.KindProviderUnavailable), http.StatusBadGateway},
		{"malformed response", kindErr(rag.KindMalformedResponse), http.StatusBadGateway},
		{"auth rejected", kindErr(rag.KindAuthRejected), http.StatusBadGateway},
		{"dimension mismatch", kindErr(rag.KindDimensionMismatch), http.StatusConflict},
		{"too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"deadline", fmt.Errorf("ask: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}
