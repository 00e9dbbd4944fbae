package rag

import (
	"context"
	"slices"
	"sync"
)

// MemoryIndex is an Index held entirely in process memory. Search is an
// exact full scan: the dataset is one document's chunks, so no approximate
// structure is needed. Vectors are expected to be L2-normalized, which makes
// the dot product equal to cosine similarity.
type MemoryIndex struct {
	// mu gives Add and Clear exclusive access and lets TopK calls share a
	// consistent snapshot.
	mu sync.RWMutex
	// chunks holds entries in insertion order.
	chunks []Chunk
	// ids tracks used chunk ids.
	ids map[int]struct{}
	// dims is the fixed vector width. Zero means "take it from the first Add".
	dims int
}

// NewMemoryIndex returns an empty MemoryIndex. If dims is positive every
// added vector must have exactly that width; otherwise the width is fixed
// by the first chunk added after construction or Clear.
func NewMemoryIndex(dims int) *MemoryIndex {
	return &MemoryIndex{
		ids:  make(map[int]struct{}),
		dims: dims,
	}
}

// Add appends chunks under the write lock. The batch is validated as a whole
// before anything is stored, so a rejected batch leaves the index unchanged.
func (m *MemoryIndex) Add(_ context.Context, chunks ...Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dims := m.dims
	if dims == 0 && len(m.chunks) > 0 {
		dims = len(m.chunks[0].Vector)
	}
	if _, err := checkBatch("memory index", dims, chunks); err != nil {
		return err
	}
	for _, c := range chunks {
		if _, dup := m.ids[c.ID]; dup {
			return NewError(KindInvalidInput, "memory index", nil, "chunk id %d already indexed", c.ID)
		}
	}

	for _, c := range chunks {
		m.chunks = append(m.chunks, Chunk{ID: c.ID, Text: c.Text, Vector: slices.Clone(c.Vector)})
		m.ids[c.ID] = struct{}{}
	}
	return nil
}

// Replace swaps the whole content for chunks under a single write lock.
// Readers see either the old content or the new one, never an empty index
// in between, and a rejected batch leaves the old content in place.
func (m *MemoryIndex) Replace(_ context.Context, chunks ...Chunk) error {
	if _, err := checkBatch("memory index", m.dims, chunks); err != nil {
		return err
	}

	next := make([]Chunk, len(chunks))
	ids := make(map[int]struct{}, len(chunks))
	for i, c := range chunks {
		next[i] = Chunk{ID: c.ID, Text: c.Text, Vector: slices.Clone(c.Vector)}
		ids[c.ID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = next
	m.ids = ids
	return nil
}

// Size returns the number of indexed chunks.
func (m *MemoryIndex) Size(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

// Clear removes every chunk. Calling it on an empty index is a no-op.
func (m *MemoryIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = nil
	m.ids = make(map[int]struct{})
	return nil
}

// TopK scores every chunk against query and returns the best k, descending
// by score with ties broken by ascending id.
func (m *MemoryIndex) TopK(_ context.Context, query []float32, k int) ([]ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if k <= 0 || len(m.chunks) == 0 {
		return nil, nil
	}
	if want := len(m.chunks[0].Vector); len(query) != want {
		return nil, NewError(KindDimensionMismatch, "memory index", nil,
			"query has dimension %d, index expects %d", len(query), want)
	}

	scored := make([]ScoredChunk, len(m.chunks))
	for i, c := range m.chunks {
		scored[i] = ScoredChunk{ID: c.ID, Text: c.Text, Score: dot(query, c.Vector)}
	}

	slices.SortFunc(scored, compareScored)
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored, nil
}

// Close is a no-op for the in-memory index.
func (m *MemoryIndex) Close() error { return nil }

// compareScored orders by descending score, then ascending id.
func compareScored(a, b ScoredChunk) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// dot returns the dot product of two equal-length vectors in float64.
func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
