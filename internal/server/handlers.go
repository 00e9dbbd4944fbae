package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/qa"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// Limits for GET /api/rag/history.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// handleAsk handles POST /api/rag/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, log, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, log, http.StatusBadRequest, "question is required", string(rag.KindInvalidInput))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.svc.Ask(ctx, req.Question)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.observeAsk("error", elapsed)
		s.writeServiceError(w, log, "ask", err)
		return
	}
	s.metrics.observeAsk(string(res.Outcome), elapsed)

	log.Info("ask answered",
		slog.String(logging.KeyIntent, res.Intent.String()),
		slog.String(logging.KeyOutcome, string(res.Outcome)),
		slog.Int("sources", len(res.Sources)),
		slog.Duration("duration", elapsed),
	)
	writeJSON(w, log, http.StatusOK, res)
}

// handleReindex handles POST /api/rag/reindex. It accepts a multipart upload
// in the "file" field, or a JSON body with either a whole document ("text")
// or pre-split passages ("chunks"). ?mode=append keeps existing chunks.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	mode, err := ingestion.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeServiceError(w, log, "reindex", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReindexTimeout)
	defer cancel()

	var report ingestion.Report
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			var maxErr *http.MaxBytesError
			if errors.As(ferr, &maxErr) {
				s.writeServiceError(w, log, "reindex", ferr)
				return
			}
			writeError(w, log, http.StatusBadRequest, "multipart field \"file\" is required", string(rag.KindInvalidInput))
			return
		}
		defer file.Close()

		text, lerr := ingestion.LoadText(header.Filename, file)
		if lerr != nil {
			s.writeServiceError(w, log, "reindex", lerr)
			return
		}
		log.Info("reindex upload received",
			slog.String("file", header.Filename),
			slog.Int64("bytes", header.Size),
			slog.String("mode", string(mode)),
		)
		report, err = s.svc.IngestText(ctx, text, mode)

	default:
		var req reindexRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			var maxErr *http.MaxBytesError
			if errors.As(derr, &maxErr) {
				s.writeServiceError(w, log, "reindex", derr)
				return
			}
			writeError(w, log, http.StatusBadRequest, "invalid request body", "")
			return
		}
		switch {
		case len(req.Chunks) > 0 && req.Text != "":
			writeError(w, log, http.StatusBadRequest, "set either text or chunks, not both", string(rag.KindInvalidInput))
			return
		case len(req.Chunks) > 0:
			report, err = s.svc.Ingest(ctx, req.Chunks, mode)
		default:
			report, err = s.svc.IngestText(ctx, req.Text, mode)
		}
	}
	if err != nil {
		s.writeServiceError(w, log, "reindex", err)
		return
	}

	s.metrics.reindexChunksTotal.Add(float64(report.Chunks))
	s.metrics.indexSize.Set(float64(report.Vectors))
	writeJSON(w, log, http.StatusOK, reindexResponse{
		Chunks:  report.Chunks,
		Vectors: report.Vectors,
		Millis:  report.Elapsed.Milliseconds(),
	})
}

// handleClear handles DELETE /api/rag/clear.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	if err := s.svc.Clear(r.Context()); err != nil {
		s.writeServiceError(w, log, "clear", err)
		return
	}
	s.metrics.indexSize.Set(0)
	w.WriteHeader(http.StatusNoContent)
}

// handleStats handles GET /api/rag/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	st, err := s.svc.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, log, "stats", err)
		return
	}
	s.metrics.indexSize.Set(float64(st.Size))
	writeJSON(w, log, http.StatusOK, statsResponse{
		Size:           st.Size,
		Dimensions:     st.Dimensions,
		EmbeddingModel: s.cfg.EmbeddingModel,
	})
}

// handleHistory handles GET /api/rag/history?limit=N.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	if !s.svc.HistoryEnabled() {
		writeError(w, log, http.StatusNotFound, "history is disabled", "")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, log, http.StatusBadRequest, "limit must be a positive integer", string(rag.KindInvalidInput))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.svc.History(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, log, "history", err)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	writeJSON(w, log, http.StatusOK, historyResponse{Entries: entries})
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch rag.KindOf(err) {
	case rag.KindInvalidInput:
		return http.StatusBadRequest
	case rag.KindConfigurationMissing:
		return http.StatusServiceUnavailable
	case rag.KindProviderUnavailable, rag.KindMalformedResponse, rag.KindAuthRejected:
		return http.StatusBadGateway
	case rag.KindDimensionMismatch:
		return http.StatusConflict
	}
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError logs err and writes the mapped status. Server-side
// failures are logged at ERROR, caller mistakes at WARN.
func (s *Server) writeServiceError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	status := statusFor(err)
	attrs := []any{
		slog.String("op", op),
		slog.Int("status", status),
		slog.Any("error", err),
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}
	writeError(w, log, status, err.Error(), string(rag.KindOf(err)))
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes an errorResponse.
func writeError(w http.ResponseWriter, log *slog.Logger, status int, msg, kind string) {
	writeJSON(w, log, status, errorResponse{Error: msg, Kind: kind})
}

// Compile-time check that *qa.Service satisfies the handler surface.
var _ service = (*qa.Service)(nil)
