package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/version"
)

// checkTimeout bounds each dependency check run by /api/ready.
const checkTimeout = 5 * time.Second

// indexCheckName labels the vector index entry in a readiness report.
const indexCheckName = "index"

// Pinger is a dependency that can report its own reachability, such as the
// chat provider or the Qdrant server. Implementations must be safe for
// concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency answered within ctx.
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness reports, e.g. "qdrant".
	Name() string
}

// readyCheck is one dependency result in a readiness report.
type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// indexStatus describes the vector index as seen by /api/ready.
type indexStatus struct {
	// Size is the number of indexed chunks. Zero means every question gets
	// the empty-index answer until a document is reindexed.
	Size           int    `json:"size"`
	Dimensions     int    `json:"dimensions"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
}

// readyResponse is the JSON body of GET /api/ready.
type readyResponse struct {
	// Ready is true only when the index and every dependency answered.
	Ready  bool         `json:"ready"`
	Index  *indexStatus `json:"index,omitempty"`
	Checks []readyCheck `json:"checks"`
}

// handleHealth serves GET /api/health. It only proves the process is
// serving; dependency state belongs to /api/ready.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK,
		map[string]string{"status": "ok", "service": "docqa", "version": version.Version})
}

// handleReady serves GET /api/ready. It reads the index stats and pings every
// configured dependency concurrently, each under checkTimeout, and answers
// 503 when any of them fails. An empty index is ready: it still answers
// questions, with the empty-index reply.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	checks := make([]readyCheck, len(s.pingers)+1)
	var index *indexStatus

	var g errgroup.Group
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		stats, err := s.svc.Stats(ctx)
		checks[0] = newReadyCheck(indexCheckName, err)
		if err == nil {
			index = &indexStatus{
				Size:           stats.Size,
				Dimensions:     stats.Dimensions,
				EmbeddingModel: s.cfg.EmbeddingModel,
			}
		}
		return nil
	})
	for i, p := range s.pingers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			defer cancel()
			checks[i+1] = newReadyCheck(p.Name(), p.Ping(ctx))
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Index: index, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness check failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}

func newReadyCheck(name string, err error) readyCheck {
	if err != nil {
		return readyCheck{Name: name, Error: err.Error()}
	}
	return readyCheck{Name: name, OK: true}
}
