// Package workspace manages the on-disk scratch area where practice sessions
// keep their recordings and synthesised pronunciations.
//
// Every session owns one directory named after its UUID. The workspace root
// holds a lock file so two servers never share (and prune) the same tree.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	lockName    = "speakez.lock"
	sessionsDir = "sessions"
)

// ErrLocked is returned by Lock when another process holds the workspace.
var ErrLocked = errors.New("workspace: already in use by another process")

// ErrInvalidID is returned for session ids that are not UUIDs.
var ErrInvalidID = errors.New("workspace: invalid session id")

// Workspace is a directory tree of per-session folders.
// It is safe for concurrent use.
type Workspace struct {
	root      string
	temporary bool
	lock      *flock.Flock
}

// Open prepares a workspace rooted at dir, creating it if needed. An empty
// dir creates a fresh temporary directory that Close removes again.
func Open(dir string) (*Workspace, error) {
	temporary := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "speakez-")
		if err != nil {
			return nil, fmt.Errorf("workspace: create temp dir: %w", err)
		}
		dir, temporary = tmp, true
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve %q: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Join(abs, sessionsDir), 0o750); err != nil {
		return nil, fmt.Errorf("workspace: create %q: %w", abs, err)
	}
	return &Workspace{
		root:      abs,
		temporary: temporary,
		lock:      flock.New(filepath.Join(abs, lockName)),
	}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Lock takes an exclusive, non-blocking lock on the workspace.
func (w *Workspace) Lock() error {
	ok, err := w.lock.TryLock()
	if err != nil {
		return fmt.Errorf("workspace: acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, w.root)
	}
	return nil
}

// Dir returns the directory for session id, creating it if needed.
func (w *Workspace) Dir(id string) (string, error) {
	dir, err := w.path(id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("workspace: create session dir: %w", err)
	}
	return dir, nil
}

// Remove deletes the directory of session id. Missing directories are not an
// error.
func (w *Workspace) Remove(id string) error {
	dir, err := w.path(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("workspace: remove session dir: %w", err)
	}
	return nil
}

// Prune removes every session directory whose id is not in live and returns
// the ids that were removed. Entries that are not session directories are
// left alone.
func (w *Workspace) Prune(live map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, sessionsDir))
	if err != nil {
		return nil, fmt.Errorf("workspace: list sessions: %w", err)
	}
	var removed []string
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || live[e.Name()] {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		if err := w.Remove(e.Name()); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, e.Name())
	}
	return removed, errors.Join(errs...)
}

// CheckWritable verifies that files can be created in the workspace.
func (w *Workspace) CheckWritable() error {
	f, err := os.CreateTemp(w.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("workspace: not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Close releases the lock and, for temporary workspaces, removes the tree.
func (w *Workspace) Close() error {
	var errs []error
	if w.lock.Locked() {
		if err := w.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("workspace: release lock: %w", err))
		}
	}
	if w.temporary {
		if err := os.RemoveAll(w.root); err != nil {
			errs = append(errs, fmt.Errorf("workspace: remove temp dir: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (w *Workspace) path(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return filepath.Join(w.root, sessionsDir, parsed.String()), nil
}
