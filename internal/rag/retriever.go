package rag

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/54b3r/docqa-go/internal/intent"
)

// Default rerank tuning. Boosts are additive and independent.
const (
	DefaultOversampleFactor = 3
	DefaultSectionBoost     = 0.08
	DefaultIntroBoost       = 0.06
	DefaultTermBoost        = 0.12
)

// introMarkers are the words that mark a chunk as belonging to an opening section.
var introMarkers = []string{"mở đầu", "introduction"}

// RerankConfig holds the tunable constants of the rerank pass. Boost fields
// are used as given, so a zero boost turns that signal off; start from
// DefaultRerankConfig to change only some of them.
type RerankConfig struct {
	// OversampleFactor multiplies k to size the candidate pool. Values below
	// 1 take DefaultOversampleFactor.
	OversampleFactor int
	// SectionBoost is added when the chunk mentions the hinted section.
	SectionBoost float64
	// IntroBoost is added when the hinted section is an introduction and the
	// chunk mentions one.
	IntroBoost float64
	// TermBoost is added for Define questions when the chunk contains the term.
	TermBoost float64
}

// DefaultRerankConfig returns the stock tuning.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		OversampleFactor: DefaultOversampleFactor,
		SectionBoost:     DefaultSectionBoost,
		IntroBoost:       DefaultIntroBoost,
		TermBoost:        DefaultTermBoost,
	}
}

// Reranker turns a raw similarity ranking into an intent-aware top-K. It
// oversamples from the index so that boosting can promote chunks that match
// the question's section or defined term but sit just outside the raw top-K.
type Reranker struct {
	// index supplies the candidate pool.
	index Index
	// cfg holds the resolved tuning constants.
	cfg RerankConfig
}

// NewReranker constructs a Reranker over index. A nil cfg uses the defaults.
func NewReranker(index Index, cfg *RerankConfig) (*Reranker, error) {
	if index == nil {
		return nil, fmt.Errorf("rag: index must not be nil")
	}
	resolved := DefaultRerankConfig()
	if cfg != nil {
		resolved = *cfg
	}
	if resolved.OversampleFactor <= 0 {
		resolved.OversampleFactor = DefaultOversampleFactor
	}
	return &Reranker{index: index, cfg: resolved}, nil
}

// Oversample returns the candidate pool size for a final answer set of k.
func (r *Reranker) Oversample(k int) int {
	return max(r.cfg.OversampleFactor*k, k+2)
}

// Rerank returns at most k chunks for the question, or an empty slice when
// no candidate clears minScore either before or after boosting. The caller
// treats an empty result as insufficient evidence.
func (r *Reranker) Rerank(ctx context.Context, question string, hint intent.Hint, query []float32, k int, minScore float64) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	candidates, err := r.index.TopK(ctx, query, r.Oversample(k))
	if err != nil {
		return nil, fmt.Errorf("rag: candidate search failed: %w", err)
	}
	if len(candidates) == 0 || candidates[0].Score < minScore {
		return nil, nil
	}

	section := fold(hint.SectionHint)
	intro := section != "" && intent.IsIntroduction(section)
	term := ""
	if hint.Intent == intent.Define {
		term = fold(hint.Term)
	}

	rescored := make([]ScoredChunk, len(candidates))
	for i, c := range candidates {
		text := fold(c.Text)
		boost := 0.0
		if section != "" {
			if strings.Contains(text, section) {
				boost += r.cfg.SectionBoost
			}
			if intro && containsAny(text, introMarkers) {
				boost += r.cfg.IntroBoost
			}
		}
		if term != "" && strings.Contains(text, term) {
			boost += r.cfg.TermBoost
		}
		rescored[i] = ScoredChunk{ID: c.ID, Text: c.Text, Score: c.Score + boost}
	}

	slices.SortStableFunc(rescored, func(a, b ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if rescored[0].Score < minScore {
		return nil, nil
	}
	if len(rescored) > k {
		rescored = rescored[:k]
	}
	return rescored, nil
}

// fold lower-cases s after NFC normalization so Vietnamese text compares
// equal regardless of how its diacritics were encoded.
func fold(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(norm.NFC.String(s))
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
