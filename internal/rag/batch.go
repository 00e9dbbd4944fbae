package rag

import (
	"context"
	"slices"
)

// checkBatch validates chunks as one unit before any index mutation. Every
// vector must have width dims (taken from the first chunk when dims is 0)
// and ids must be non-negative and unique within the batch. It returns the
// resolved width.
func checkBatch(op string, dims int, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return dims, nil
	}
	if dims == 0 {
		dims = len(chunks[0].Vector)
	}

	seen := make(map[int]struct{}, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) == 0 || len(c.Vector) != dims {
			return 0, NewError(KindDimensionMismatch, op, nil,
				"chunk %d has dimension %d, index expects %d", c.ID, len(c.Vector), dims)
		}
		if c.ID < 0 {
			return 0, NewError(KindInvalidInput, op, nil, "chunk id %d must not be negative", c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return 0, NewError(KindInvalidInput, op, nil, "chunk id %d repeated in batch", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return dims, nil
}

// searchFunc runs one similarity query returning at most limit results in
// descending score order. A non-nil floor excludes results scoring below it.
type searchFunc func(ctx context.Context, limit int, floor *float32) ([]ScoredChunk, error)

// topKWithTies returns the best k results of search ordered by descending
// score and ascending id. A store that applies its limit before breaking
// ties can cut a lower id that shares the k-th score, so when the first page
// is full every result tied with the k-th score is fetched before
// truncating.
func topKWithTies(ctx context.Context, k int, search searchFunc) ([]ScoredChunk, error) {
	out, err := search(ctx, k, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == k {
		floor := float32(out[k-1].Score)
		for limit := 2 * k; ; limit *= 2 {
			wider, err := search(ctx, limit, &floor)
			if err != nil {
				return nil, err
			}
			out = wider
			if len(wider) < limit {
				break
			}
		}
	}

	slices.SortFunc(out, compareScored)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}
