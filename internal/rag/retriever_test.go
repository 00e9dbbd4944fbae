package rag

import (
	"context"
	"errors"
	"math"
	"testing"

	"golang.org/x/text/unicode/norm"

	"github.com/54b3r/docqa-go/internal/intent"
)

// angleFor returns the angle whose cosine against unit(0) is sim.
func angleFor(sim float64) float64 { return math.Acos(sim) }

// countingIndex records the k of every TopK call.
type countingIndex struct {
	Index
	ks []int
}

func (c *countingIndex) TopK(ctx context.Context, q []float32, k int) ([]ScoredChunk, error) {
	c.ks = append(c.ks, k)
	return c.Index.TopK(ctx, q, k)
}

type failingIndex struct{ Index }

func (failingIndex) TopK(context.Context, []float32, int) ([]ScoredChunk, error) {
	return nil, errors.New("boom")
}

func newTestReranker(t *testing.T, idx Index) *Reranker {
	t.Helper()
	r, err := NewReranker(idx, nil)
	if err != nil {
		t.Fatalf("NewReranker: %v", err)
	}
	return r
}

func TestNewReranker_NilIndex(t *testing.T) {
	t.Parallel()
	if _, err := NewReranker(nil, nil); err == nil {
		t.Fatal("expected error for nil index")
	}
}

func TestReranker_Oversample(t *testing.T) {
	t.Parallel()
	r := newTestReranker(t, NewMemoryIndex(0))

	tests := []struct{ k, want int }{
		{1, 3},
		{4, 12},
		{5, 15},
	}
	for _, tt := range tests {
		if got := r.Oversample(tt.k); got != tt.want {
			t.Errorf("Oversample(%d) = %d, want %d", tt.k, got, tt.want)
		}
	}

	custom, _ := NewReranker(NewMemoryIndex(0), &RerankConfig{OversampleFactor: 1})
	if got := custom.Oversample(4); got != 6 {
		t.Errorf("factor 1: Oversample(4) = %d, want k+2 = 6", got)
	}
}

func TestReranker_QueriesOversampledPool(t *testing.T) {
	t.Parallel()
	ci := &countingIndex{Index: newTestIndex(t, Chunk{ID: 0, Text: "x", Vector: unit(0)})}
	r := newTestReranker(t, ci)

	if _, err := r.Rerank(context.Background(), "q", intent.Hint{}, unit(0), 4, 0.35); err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(ci.ks) != 1 || ci.ks[0] != 12 {
		t.Errorf("want one TopK call with k=12, got %v", ci.ks)
	}
}

// TestReranker_DefineTermBoost covers a single chunk containing the defined
// term: its final score carries the term boost and it is returned.
func TestReranker_DefineTermBoost(t *testing.T) {
	t.Parallel()

	raw := 0.8
	idx := newTestIndex(t, Chunk{ID: 0, Text: "X is defined as Y.", Vector: unit(angleFor(raw))})
	r := newTestReranker(t, idx)

	q := "What is X?"
	hint := intent.Detect(q)
	if hint.Intent != intent.Define || hint.Term != "X" {
		t.Fatalf("precondition: Detect(%q) = %+v", q, hint)
	}

	got, err := r.Rerank(context.Background(), q, hint, unit(0), 4, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 1 || got[0].ID != 0 {
		t.Fatalf("want chunk 0, got %+v", got)
	}
	if got[0].Score < raw+DefaultTermBoost-1e-6 {
		t.Errorf("score %v < raw %v + term boost %v", got[0].Score, raw, DefaultTermBoost)
	}
}

// TestReranker_BelowThreshold covers candidates that exist but whose best
// raw similarity is under minScore.
func TestReranker_BelowThreshold(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t,
		Chunk{ID: 0, Text: "unrelated", Vector: unit(angleFor(0.20))},
		Chunk{ID: 1, Text: "also unrelated", Vector: unit(angleFor(0.10))},
	)
	r := newTestReranker(t, idx)

	got, err := r.Rerank(context.Background(), "Who?", intent.Hint{}, unit(0), 4, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want empty result, got %+v", got)
	}
}

// TestReranker_BoostCannotRescueWeakPool checks that boosting is applied only
// after the raw-score rejection, so a weak best candidate still yields empty.
func TestReranker_BoostCannotRescueWeakPool(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, Chunk{ID: 0, Text: "X is defined as Y.", Vector: unit(angleFor(0.30))})
	r := newTestReranker(t, idx)

	hint := intent.Hint{Intent: intent.Define, Term: "X"}
	got, err := r.Rerank(context.Background(), "What is X?", hint, unit(0), 4, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want empty result, got %+v", got)
	}
}

func TestReranker_SectionAndIntroBoostsPromote(t *testing.T) {
	t.Parallel()

	// Chunk 1 is slightly less similar but names the introduction section.
	idx := newTestIndex(t,
		Chunk{ID: 0, Text: "Results are in table 4.", Vector: unit(angleFor(0.70))},
		Chunk{ID: 1, Text: "Phần mở đầu trình bày bối cảnh.", Vector: unit(angleFor(0.60))},
		Chunk{ID: 2, Text: "Appendix.", Vector: unit(angleFor(0.50))},
	)
	r := newTestReranker(t, idx)

	hint := intent.Hint{Intent: intent.Default, SectionHint: "phần mở đầu"}
	got, err := r.Rerank(context.Background(), "Phần mở đầu nói gì?", hint, unit(0), 1, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("want chunk 1 promoted to top, got %+v", got)
	}
	want := 0.60 + DefaultSectionBoost + DefaultIntroBoost
	if math.Abs(got[0].Score-want) > 1e-6 {
		t.Errorf("score = %v, want %v", got[0].Score, want)
	}
}

func TestReranker_TermBoostOnlyForDefine(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t, Chunk{ID: 0, Text: "X is defined as Y.", Vector: unit(angleFor(0.8))})
	r := newTestReranker(t, idx)

	hint := intent.Hint{Intent: intent.Summary, Term: "X"}
	got, err := r.Rerank(context.Background(), "q", hint, unit(0), 4, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 1 || math.Abs(got[0].Score-0.8) > 1e-6 {
		t.Errorf("want unboosted score 0.8, got %+v", got)
	}
}

func TestReranker_ZeroBoostDisablesSignal(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t,
		Chunk{ID: 0, Text: "Results are in table 4.", Vector: unit(angleFor(0.70))},
		Chunk{ID: 1, Text: "Phần mở đầu: X is defined as Y.", Vector: unit(angleFor(0.60))},
	)
	cfg := DefaultRerankConfig()
	cfg.SectionBoost, cfg.IntroBoost, cfg.TermBoost = 0, 0, 0
	r, err := NewReranker(idx, &cfg)
	if err != nil {
		t.Fatalf("NewReranker: %v", err)
	}

	hint := intent.Hint{Intent: intent.Define, Term: "X", SectionHint: "phần mở đầu"}
	got, err := r.Rerank(context.Background(), "q", hint, unit(0), 2, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 2 || got[0].ID != 0 || math.Abs(got[1].Score-0.60) > 1e-6 {
		t.Errorf("want raw order and scores with boosts off, got %+v", got)
	}
}

func TestDefaultRerankConfig(t *testing.T) {
	t.Parallel()

	want := RerankConfig{OversampleFactor: 3, SectionBoost: 0.08, IntroBoost: 0.06, TermBoost: 0.12}
	if got := DefaultRerankConfig(); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestReranker_MatchIsCaseAndNormalizationInsensitive(t *testing.T) {
	t.Parallel()

	// Decomposed text in the chunk, composed text in the hint.
	text := "Đây là PHẦN MỞ ĐẦU của báo cáo."
	idx := newTestIndex(t, Chunk{ID: 0, Text: norm.NFD.String(text), Vector: unit(angleFor(0.5))})
	r := newTestReranker(t, idx)

	hint := intent.Hint{SectionHint: "phần mở đầu"}
	got, err := r.Rerank(context.Background(), "q", hint, unit(0), 1, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	want := 0.5 + DefaultSectionBoost + DefaultIntroBoost
	if len(got) != 1 || math.Abs(got[0].Score-want) > 1e-6 {
		t.Errorf("want score %v, got %+v", want, got)
	}
}

func TestReranker_ThresholdMonotonic(t *testing.T) {
	t.Parallel()

	idx := newTestIndex(t,
		Chunk{ID: 0, Text: "a", Vector: unit(angleFor(0.9))},
		Chunk{ID: 1, Text: "b", Vector: unit(angleFor(0.6))},
		Chunk{ID: 2, Text: "c", Vector: unit(angleFor(0.4))},
		Chunk{ID: 3, Text: "d", Vector: unit(angleFor(0.2))},
	)
	r := newTestReranker(t, idx)

	prev := math.MaxInt
	for _, minScore := range []float64{0, 0.3, 0.5, 0.85, 0.95} {
		got, err := r.Rerank(context.Background(), "q", intent.Hint{}, unit(0), 4, minScore)
		if err != nil {
			t.Fatalf("Rerank(minScore=%v): %v", minScore, err)
		}
		if len(got) > prev {
			t.Errorf("minScore=%v returned %d results, more than %d at a lower threshold", minScore, len(got), prev)
		}
		prev = len(got)
	}
}

func TestReranker_SectionKeywordNeverLowersRank(t *testing.T) {
	t.Parallel()

	// Identical vectors, ids ordered so that without a boost the plain chunk wins the tie.
	v := unit(angleFor(0.7))
	idx := newTestIndex(t,
		Chunk{ID: 0, Text: "plain text", Vector: v},
		Chunk{ID: 1, Text: "plain text, see conclusion", Vector: v},
	)
	r := newTestReranker(t, idx)

	hint := intent.Hint{SectionHint: "conclusion"}
	got, err := r.Rerank(context.Background(), "q", hint, unit(0), 2, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 {
		t.Errorf("want keyword chunk first, got %+v", got)
	}
}

func TestReranker_StableOnTies(t *testing.T) {
	t.Parallel()

	v := unit(angleFor(0.7))
	idx := newTestIndex(t,
		Chunk{ID: 4, Text: "d", Vector: v},
		Chunk{ID: 1, Text: "a", Vector: v},
		Chunk{ID: 3, Text: "c", Vector: v},
	)
	r := newTestReranker(t, idx)

	got, err := r.Rerank(context.Background(), "q", intent.Hint{}, unit(0), 3, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	want := []int{1, 3, 4}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("result[%d] = %d, want %d", i, got[i].ID, id)
		}
	}
}

func TestReranker_TruncatesToK(t *testing.T) {
	t.Parallel()

	var chunks []Chunk
	for i := range 10 {
		chunks = append(chunks, Chunk{ID: i, Text: "t", Vector: unit(float64(i) * 0.05)})
	}
	r := newTestReranker(t, newTestIndex(t, chunks...))

	got, err := r.Rerank(context.Background(), "q", intent.Hint{}, unit(0), 3, 0.35)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("want 3 results, got %d", len(got))
	}
}

func TestReranker_EmptyIndexAndZeroK(t *testing.T) {
	t.Parallel()
	r := newTestReranker(t, NewMemoryIndex(2))

	got, err := r.Rerank(context.Background(), "q", intent.Hint{}, unit(0), 4, 0.35)
	if err != nil || len(got) != 0 {
		t.Errorf("empty index: got %+v, %v", got, err)
	}
	got, err = r.Rerank(context.Background(), "q", intent.Hint{}, unit(0), 0, 0.35)
	if err != nil || len(got) != 0 {
		t.Errorf("k=0: got %+v, %v", got, err)
	}
}

func TestReranker_PropagatesIndexError(t *testing.T) {
	t.Parallel()
	r := newTestReranker(t, failingIndex{Index: NewMemoryIndex(2)})

	if _, err := r.Rerank(context.Background(), "q", intent.Hint{}, unit(0), 4, 0.35); err == nil {
		t.Fatal("expected error from failing index")
	}
}
