package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/speakez/internal/history"
	"github.com/MrWong99/speakez/internal/history/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		err := s.Record(ctx, history.Attempt{
			SessionID:  "s1",
			Reference:  "hello world",
			Candidate:  fmt.Sprintf("try %d", i),
			Percentage: 50,
			Matched:    1,
			Total:      2,
			Language:   "en",
			// Sub-second offsets check that text ordering stays chronological.
			CreatedAt: base.Add(time.Duration(i) * 100 * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	s.Record(ctx, history.Attempt{SessionID: "s2", Reference: "x", Candidate: "y", CreatedAt: base.Add(time.Hour)})

	got, err := s.List(ctx, history.Query{SessionID: "s1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Candidate != "try 2" || got[2].Candidate != "try 0" {
		t.Errorf("order = %q, %q, %q", got[0].Candidate, got[1].Candidate, got[2].Candidate)
	}
	if !got[2].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", got[2].CreatedAt, base)
	}

	all, _ := s.List(ctx, history.Query{Limit: 1})
	if len(all) != 1 || all[0].SessionID != "s2" {
		t.Errorf("newest = %+v", all)
	}
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Record(ctx, history.Attempt{SessionID: "s", Reference: "a", Candidate: "a"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.Close()

	s, err = sqlite.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.List(ctx, history.Query{})
	if err != nil || len(got) != 1 {
		t.Errorf("List after reopen = %v, %v", got, err)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	if err := openStore(t).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := sqlite.Open(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
