package history_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/speakez/internal/history"
	"github.com/MrWong99/speakez/pkg/scoring"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s history.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i := range 5 {
		sid := "s1"
		if i%2 == 1 {
			sid = "s2"
		}
		a := history.Attempt{
			SessionID:  sid,
			Reference:  "the quick brown fox",
			Candidate:  fmt.Sprintf("attempt %d", i),
			Percentage: float64(i * 10),
			Matched:    i,
			Total:      4,
			Language:   "en",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Record(ctx, a); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	all, err := s.List(ctx, history.Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("len(all) = %d, want 5", len(all))
	}
	if all[0].Candidate != "attempt 4" || all[4].Candidate != "attempt 0" {
		t.Errorf("order = %q .. %q, want newest first", all[0].Candidate, all[4].Candidate)
	}
	if all[0].ID == "" {
		t.Error("Record should assign an ID")
	}
	if !all[0].CreatedAt.Equal(base.Add(4 * time.Second)) {
		t.Errorf("CreatedAt = %v", all[0].CreatedAt)
	}

	s1, err := s.List(ctx, history.Query{SessionID: "s1", Limit: 2})
	if err != nil {
		t.Fatalf("List s1: %v", err)
	}
	if len(s1) != 2 || s1[0].SessionID != "s1" || s1[0].Candidate != "attempt 4" || s1[1].Candidate != "attempt 2" {
		t.Errorf("s1 = %+v", s1)
	}

	none, err := s.List(ctx, history.Query{SessionID: "missing"})
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("List(missing) = %v, %v; want empty non-nil", none, err)
	}

	if err := s.Record(ctx, history.Attempt{}); !errors.Is(err, history.ErrInvalidAttempt) {
		t.Errorf("Record(empty) err = %v, want ErrInvalidAttempt", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestMemStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, history.NewMemStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()
	fs, err := history.NewFileStore(filepath.Join(t.TempDir(), "nested", "history.jsonl"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseStore(t, fs)
}

func TestFileStore_SkipsMalformedLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.jsonl")
	content := `{"id":"a","session_id":"s","percentage":50}
not json
{"id":"b","session_id":"s","percentage":75}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	fs, _ := history.NewFileStore(path)
	got, err := fs.List(context.Background(), history.Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Errorf("got = %+v", got)
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	fs, _ := history.NewFileStore(filepath.Join(t.TempDir(), "none.jsonl"))
	got, err := fs.List(context.Background(), history.Query{})
	if err != nil || len(got) != 0 {
		t.Errorf("List = %v, %v", got, err)
	}
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	if _, err := history.NewFileStore(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestNewAttempt(t *testing.T) {
	t.Parallel()

	res := scoring.Score("a b c d", "a b")
	a := history.NewAttempt("sid", "en", "a b c d", "a b", res)
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Errorf("missing defaults: %+v", a)
	}
	if a.Percentage != 50 || a.Matched != 2 || a.Total != 4 {
		t.Errorf("score fields = %v %d/%d", a.Percentage, a.Matched, a.Total)
	}
}

func TestFilter_DefaultLimit(t *testing.T) {
	t.Parallel()

	many := make([]history.Attempt, history.DefaultLimit+10)
	if got := history.Filter(many, history.Query{}); len(got) != history.DefaultLimit {
		t.Errorf("len = %d, want %d", len(got), history.DefaultLimit)
	}
}
