// Package rag defines the retrieval side of the question-answering pipeline:
// the chunk types, the vector index contract and its implementations, the
// embedding capability, and the intent-aware reranker that turns a raw
// similarity ranking into the final top-K passed to prompt assembly.
package rag

import (
	"context"
)

// Chunk is a bounded span of document text stored with its embedding.
// Chunks are created at ingestion and never mutated; they are removed only
// by clearing the whole index.
type Chunk struct {
	// ID is caller-assigned, unique and stable for the lifetime of an index.
	// The ingestion pipeline uses the chunk's position in the split sequence.
	ID int

	// Text is the raw chunk content.
	Text string

	// Vector is the L2-normalized embedding of Text.
	Vector []float32
}

// ScoredChunk is a transient view of a chunk produced by search or rerank.
type ScoredChunk struct {
	// ID is the chunk identifier.
	ID int

	// Text is the chunk content.
	Text string

	// Score is the cosine similarity to the query, plus any rerank boosts.
	Score float64
}

// Index is the interface for storing chunks and answering top-K similarity
// queries. Implementations must be safe to call from multiple goroutines and
// must not let Clear interleave with an in-flight Add or TopK.
type Index interface {
	// Add appends chunks to the index. Every vector must have the index
	// dimension and every id must be unused; a reused id is rejected, never
	// overwritten.
	Add(ctx context.Context, chunks ...Chunk) error

	// Size returns the number of indexed chunks.
	Size(ctx context.Context) (int, error)

	// Replace atomically swaps the whole content for chunks. On error the
	// previous content is left in place, and concurrent readers never see
	// an intermediate state.
	Replace(ctx context.Context, chunks ...Chunk) error

	// Clear removes every chunk and resets the size to zero.
	Clear(ctx context.Context) error

	// TopK returns at most min(k, size) chunks ordered by descending cosine
	// similarity to query, ties broken by ascending id.
	TopK(ctx context.Context, query []float32, k int) ([]ScoredChunk, error)

	// Close releases any resources held by the index.
	Close() error
}

// Embedder is the capability for converting text into normalized dense
// vectors. Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns the embedding of a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the width of every vector this embedder produces.
	Dimensions() int
}
