package rag

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

func TestReusedIDError(t *testing.T) {
	t.Parallel()

	if err := reusedIDError(nil); err != nil {
		t.Errorf("no existing points: got %v", err)
	}

	err := reusedIDError([]*qdrant.RetrievedPoint{
		{Id: qdrant.NewIDNum(7)},
		{Id: qdrant.NewIDNum(3)},
		{Id: qdrant.NewIDNum(5)},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("want ErrInvalidInput, got %v", err)
	}
	if !strings.Contains(err.Error(), "chunk id 3 already indexed") {
		t.Errorf("want lowest id reported, got %q", err)
	}
}

func TestQdrantIndex_PointsValidateBeforeWrite(t *testing.T) {
	t.Parallel()
	q := &QdrantIndex{cfg: &QdrantConfig{VectorSize: 2}}

	points, err := q.points([]Chunk{
		{ID: 0, Text: "Chương 1", Vector: unit(0)},
		{ID: 4, Text: "Chương 2", Vector: unit(1)},
	})
	if err != nil {
		t.Fatalf("points: %v", err)
	}
	if len(points) != 2 || points[1].GetId().GetNum() != 4 {
		t.Fatalf("points = %v", points)
	}
	if got := points[0].GetPayload()[payloadText].GetStringValue(); got != "Chương 1" {
		t.Errorf("payload text = %q", got)
	}

	cases := []struct {
		name   string
		chunks []Chunk
		want   error
	}{
		{"wrong width", []Chunk{{ID: 0, Vector: []float32{1, 0, 0}}}, ErrDimensionMismatch},
		{"negative id", []Chunk{{ID: -1, Vector: unit(0)}}, ErrInvalidInput},
		{"repeated id", []Chunk{{ID: 1, Vector: unit(0)}, {ID: 1, Vector: unit(1)}}, ErrInvalidInput},
	}
	for _, tc := range cases {
		if _, err := q.points(tc.chunks); !errors.Is(err, tc.want) {
			t.Errorf("%s: want %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestGenerationNameDistinct(t *testing.T) {
	t.Parallel()

	at := time.Unix(1700000000, 42)
	a := generationName("docqa", at)
	b := generationName("docqa", at.Add(time.Nanosecond))
	if !strings.HasPrefix(a, "docqa_") || a == b {
		t.Errorf("generation names %q and %q must be prefixed and distinct", a, b)
	}
}
