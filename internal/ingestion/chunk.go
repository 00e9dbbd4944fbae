package ingestion

import (
	"strings"
	"unicode"
)

// Default splitter settings, in runes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// Chunk splits text into overlapping windows of at most size runes, each
// starting size-overlap runes after the previous one. Windows never split a
// multi-byte character. Leading and trailing whitespace of each window is
// trimmed and whitespace-only windows are dropped.
//
// size <= 0 uses DefaultChunkSize; an overlap outside [0, size) is clamped
// to size/10.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 10
	}

	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		if c := strings.TrimFunc(string(runes[start:end]), unicode.IsSpace); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
