package store

import (
	"context"
	"testing"
	"time"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Store_RecordAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	in := Entry{
		Question:  "Trí tuệ nhân tạo là gì?",
		Answer:    "Trí tuệ nhân tạo là ...",
		Intent:    "DEFINE",
		Outcome:   "answered",
		Sources:   []Source{{ID: 5, Score: 0.76}, {ID: 7, Score: 0.74}},
		ElapsedMS: 1500,
	}
	if err := s.Record(ctx, in); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.ID == 0 {
		t.Error("want assigned id")
	}
	if e.Question != in.Question || e.Answer != in.Answer || e.Intent != "DEFINE" || e.Outcome != "answered" {
		t.Errorf("round-trip mismatch: %+v", e)
	}
	if len(e.Sources) != 2 || e.Sources[0].ID != 5 || e.Sources[1].ID != 7 {
		t.Errorf("sources: got %+v", e.Sources)
	}
	if e.ElapsedMS != 1500 {
		t.Errorf("elapsed: got %d", e.ElapsedMS)
	}
	if e.CreatedAt.IsZero() {
		t.Error("want CreatedAt set")
	}
}

func Test_Store_NoSourcesStoredAsEmpty(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, Entry{Question: "q", Answer: "Tôi không biết.", Intent: "DEFAULT", Outcome: "insufficient_evidence"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || len(got[0].Sources) != 0 {
		t.Errorf("want one entry with no sources, got %+v", got)
	}
}

func Test_Store_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for range 6 {
		if err := s.Record(ctx, Entry{Question: "q", Answer: "a", Intent: "DEFAULT", Outcome: "answered"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 4 {
		t.Errorf("want 4 entries, got %d", len(got))
	}
}

func Test_Store_EmptyReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent empty: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want 0 entries, got %d", len(got))
	}
}

func Test_Store_NewestFirstOrdering(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	step := 0
	s.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	questions := []string{"first", "second", "third"}
	for _, q := range questions {
		if err := s.Record(ctx, Entry{Question: q, Answer: "a", Intent: "DEFAULT", Outcome: "answered"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	want := []string{"third", "second", "first"}
	for i, q := range want {
		if got[i].Question != q {
			t.Errorf("entry[%d]: want %q, got %q", i, q, got[i].Question)
		}
	}
}

func Test_Store_RejectsUnknownOutcome(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	err := s.Record(context.Background(), Entry{Question: "q", Answer: "a", Intent: "DEFAULT", Outcome: "bogus"})
	if err == nil {
		t.Error("want constraint error for unknown outcome")
	}
}
