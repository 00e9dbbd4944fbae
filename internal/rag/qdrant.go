package rag

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// payloadText is the Qdrant payload key holding the chunk text.
const payloadText = "text"

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements Index on a Qdrant collection so a document indexed
// by one CLI invocation can be queried by the next. Searches are exact, so
// results match MemoryIndex for the same data.
//
// The configured collection name is a Qdrant alias over a generation
// collection (<name>_<unix nanos>). Replace and Clear build a new generation
// and move the alias in one request, so readers never see a half-written or
// empty collection. A plain collection left under the name by an older
// release keeps working and is converted on the first Replace.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig

	// mu serialises writers so id checks and alias swaps do not interleave.
	mu sync.Mutex
}

// NewQdrantIndex connects to Qdrant, ensures the target collection exists
// (creating it if necessary), and returns a ready-to-use Index.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.VectorSize == 0 {
		return nil, NewError(KindConfigurationMissing, "qdrant", nil, "vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// Client exposes the gRPC client for readiness probes.
func (q *QdrantIndex) Client() *qdrant.Client { return q.client }

// ensureCollection makes the configured name resolvable, creating a first
// generation and its alias when neither an alias nor a plain collection
// exists.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	backing, err := q.backingCollection(ctx)
	if err != nil {
		return err
	}
	if backing != "" {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	gen := generationName(q.cfg.Collection, time.Now())
	if err := q.createCollection(ctx, gen); err != nil {
		return err
	}
	if err := q.client.CreateAlias(ctx, q.cfg.Collection, gen); err != nil {
		_ = q.client.DeleteCollection(ctx, gen)
		return fmt.Errorf("qdrant: failed to alias %q to %q: %w", q.cfg.Collection, gen, err)
	}
	return nil
}

// backingCollection returns the collection the configured alias points to,
// or "" when the name is not an alias.
func (q *QdrantIndex) backingCollection(ctx context.Context) (string, error) {
	aliases, err := q.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("qdrant: failed to list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == q.cfg.Collection {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (q *QdrantIndex) createCollection(ctx context.Context, name string) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", name, err)
	}
	return nil
}

// generationName names the collection backing one Replace.
func generationName(alias string, at time.Time) string {
	return fmt.Sprintf("%s_%d", alias, at.UnixNano())
}

// points validates chunks against the collection width and converts them.
func (q *QdrantIndex) points(chunks []Chunk) ([]*qdrant.PointStruct, error) {
	if _, err := checkBatch("qdrant", int(q.cfg.VectorSize), chunks); err != nil { //nolint:gosec // vector sizes are small
		return nil, err
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(c.ID)), //nolint:gosec // checkBatch rejects negative ids
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{payloadText: c.Text}),
		})
	}
	return points, nil
}

func (q *QdrantIndex) upsert(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Add inserts chunks as points keyed by their numeric id. Ids already in the
// collection are rejected before anything is written.
func (q *QdrantIndex) Add(ctx context.Context, chunks ...Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points, err := q.points(chunks)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]*qdrant.PointId, len(points))
	for i, p := range points {
		ids[i] = p.GetId()
	}
	existing, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.cfg.Collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return fmt.Errorf("qdrant: id lookup failed: %w", err)
	}
	if err := reusedIDError(existing); err != nil {
		return err
	}

	return q.upsert(ctx, q.cfg.Collection, points)
}

// reusedIDError reports the lowest id among points found by an Add lookup,
// or nil when none were found.
func reusedIDError(existing []*qdrant.RetrievedPoint) error {
	if len(existing) == 0 {
		return nil
	}
	lowest := existing[0].GetId().GetNum()
	for _, p := range existing[1:] {
		lowest = min(lowest, p.GetId().GetNum())
	}
	return NewError(KindInvalidInput, "qdrant", nil, "chunk id %d already indexed", lowest)
}

// Replace writes chunks into a fresh generation and then points the alias
// at it. Any failure before the swap drops the new generation and leaves the
// current one serving.
func (q *QdrantIndex) Replace(ctx context.Context, chunks ...Chunk) error {
	points, err := q.points(chunks)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	old, err := q.backingCollection(ctx)
	if err != nil {
		return err
	}

	gen := generationName(q.cfg.Collection, time.Now())
	if err := q.createCollection(ctx, gen); err != nil {
		return err
	}
	if len(points) > 0 {
		if err := q.upsert(ctx, gen, points); err != nil {
			_ = q.client.DeleteCollection(ctx, gen)
			return err
		}
	}
	return q.swap(ctx, old, gen)
}

// swap points the alias at gen and drops the previous generation.
func (q *QdrantIndex) swap(ctx context.Context, old, gen string) error {
	if old == "" {
		// The name is still a plain collection and must be dropped before an
		// alias can take it. gen is kept on failure since it now holds the
		// only copy of the data.
		if err := q.client.DeleteCollection(ctx, q.cfg.Collection); err != nil {
			_ = q.client.DeleteCollection(ctx, gen)
			return fmt.Errorf("qdrant: delete collection %q: %w", q.cfg.Collection, err)
		}
		if err := q.client.CreateAlias(ctx, q.cfg.Collection, gen); err != nil {
			return fmt.Errorf("qdrant: alias %q to %q: %w", q.cfg.Collection, gen, err)
		}
		return nil
	}

	err := q.client.UpdateAliases(ctx, []*qdrant.AliasOperations{
		qdrant.NewAliasDelete(q.cfg.Collection),
		qdrant.NewAliasCreate(q.cfg.Collection, gen),
	})
	if err != nil {
		_ = q.client.DeleteCollection(ctx, gen)
		return fmt.Errorf("qdrant: move alias %q to %q: %w", q.cfg.Collection, gen, err)
	}
	// The old generation is unreachable once the alias moved.
	_ = q.client.DeleteCollection(ctx, old)
	return nil
}

// Size returns the exact point count of the collection.
func (q *QdrantIndex) Size(ctx context.Context) (int, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil //nolint:gosec // collection sizes are far below MaxInt
}

// Clear swaps in an empty generation.
func (q *QdrantIndex) Clear(ctx context.Context) error {
	return q.Replace(ctx)
}

// TopK performs an exact cosine search with equal scores ordered by
// ascending id, including ties that straddle the limit.
func (q *QdrantIndex) TopK(ctx context.Context, query []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if uint64(len(query)) != q.cfg.VectorSize { //nolint:gosec // length is non-negative
		return nil, NewError(KindDimensionMismatch, "qdrant", nil,
			"query has dimension %d, collection expects %d", len(query), q.cfg.VectorSize)
	}

	return topKWithTies(ctx, k, func(ctx context.Context, limit int, floor *float32) ([]ScoredChunk, error) {
		req := &qdrant.QueryPoints{
			CollectionName: q.cfg.Collection,
			Query:          qdrant.NewQuery(query...),
			Limit:          qdrant.PtrOf(uint64(limit)), //nolint:gosec // limit > 0
			Params:         &qdrant.SearchParams{Exact: qdrant.PtrOf(true)},
			WithPayload:    qdrant.NewWithPayload(true),
		}
		if floor != nil {
			// One ulp below so a strict threshold still returns the tied scores.
			req.ScoreThreshold = qdrant.PtrOf(math.Nextafter32(*floor, float32(math.Inf(-1))))
		}
		results, err := q.client.Query(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("qdrant: search failed: %w", err)
		}

		out := make([]ScoredChunk, 0, len(results))
		for _, r := range results {
			sc := ScoredChunk{
				ID:    int(r.GetId().GetNum()), //nolint:gosec // ids are assigned from int
				Score: float64(r.GetScore()),
			}
			if v, ok := r.GetPayload()[payloadText]; ok {
				sc.Text = v.GetStringValue()
			}
			out = append(out, sc)
		}
		return out, nil
	})
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
