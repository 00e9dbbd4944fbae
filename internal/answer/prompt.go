package answer

import (
	"fmt"
	"strings"

	"github.com/54b3r/docqa-go/internal/intent"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	contextStart = "=== CONTEXT START ===\n"
	contextEnd   = "=== CONTEXT END ===\n\n"
)

// FormatDirective returns the intent-specific formatting line appended
// before the question, or "" when the intent has none.
func FormatDirective(h intent.Hint) string {
	switch h.Intent {
	case intent.BulletSummary:
		if h.BulletCount > 0 {
			return fmt.Sprintf("Return exactly %d bullets.\n", h.BulletCount)
		}
		return "Return 3-6 bullets.\n"
	case intent.Define:
		if h.Term != "" {
			return "Term to define: \"" + h.Term + "\"\n"
		}
		return ""
	case intent.Compare:
		return "If the question mentions two methods A and B, structure bullets per method.\n"
	default:
		return ""
	}
}

// ContextBlock serializes ranked chunks in order, each tagged with its id
// and boosted score.
func ContextBlock(chunks []rag.ScoredChunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&sb, "\n[Chunk #%d / score=%.3f]\n%s\n", c.ID, c.Score, c.Text)
	}
	return sb.String()
}

// UserPrompt assembles the user message: delimited context, then the
// formatting directive, then the question.
func UserPrompt(contextBlock, directive, question string) string {
	var sb strings.Builder
	sb.WriteString(contextStart)
	sb.WriteString(contextBlock)
	sb.WriteString(contextEnd)
	sb.WriteString(directive)
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")
	return sb.String()
}
