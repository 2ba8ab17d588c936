package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

var _ Store = (*FileStore)(nil)

// FileStore persists attempts as JSON lines in a local file. It suits a
// single learner on one machine. Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that appends to path. The file and its
// parent directory are created on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("history: file path must not be empty")
	}
	return &FileStore{path: path}, nil
}

// Record implements [Store.Record].
func (fs *FileStore) Record(_ context.Context, a Attempt) error {
	a, err := Prepare(a)
	if err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o750); err != nil {
		return fmt.Errorf("history: create dir: %w", err)
	}
	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// List implements [Store.List]. Malformed lines are skipped with a warning.
func (fs *FileStore) List(ctx context.Context, q Query) ([]Attempt, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Attempt{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	var all []Attempt
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var a Attempt
		if err := json.Unmarshal(sc.Bytes(), &a); err != nil {
			slog.WarnContext(ctx, "history: skipping malformed line", "path", fs.path, "line", line, "err", err)
			continue
		}
		all = append(all, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("history: read file: %w", err)
	}
	slices.Reverse(all)
	return Filter(all, q), nil
}

// Ping implements [Store.Ping] by checking that the directory is reachable.
func (fs *FileStore) Ping(context.Context) error {
	dir := filepath.Dir(fs.path)
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("history: stat %s: %w", dir, err)
	}
	return nil
}

// Close implements [Store.Close].
func (fs *FileStore) Close() error { return nil }
