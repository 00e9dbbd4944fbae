// Package budget provides token budget estimation for prompt assembly.
// Because the pipeline supports multiple LLM backends with different
// tokenizers, this package uses a conservative character-based heuristic:
// 1 token ≈ 4 bytes. Multi-byte scripts such as Vietnamese are therefore
// over-estimated, which leaves headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the conservative byte-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost in most chat APIs.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// It fits 8k-context models while leaving room for the answer.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// FitChunks returns how many of the ranked chunks, taken from the front, fit
// within maxTokens alongside the fixed messages (system prompt, question and
// formatting directive). Chunks are dropped lowest-ranked first. The top chunk
// is always kept so a question never goes out with an empty context; callers
// should warn separately if that single chunk overflows the budget.
func FitChunks(fixed []*schema.Message, chunks []string, maxTokens int) int {
	if len(chunks) == 0 {
		return 0
	}

	used := EstimateMessages(fixed)
	keep := 0
	for _, c := range chunks {
		cost := Estimate(c)
		if keep > 0 && used+cost > maxTokens {
			break
		}
		used += cost
		keep++
	}
	return keep
}
