// Package sqlite provides a SQLite-backed history.Store using the pure-Go
// modernc.org/sqlite driver, so no cgo toolchain is needed.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/speakez/internal/history"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var _ history.Store = (*Store)(nil)

// timeLayout is fixed-width so created_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists attempts in a SQLite database file.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases alive and serialises
	// writers, which SQLite would do anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: apply pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Record implements history.Store.
func (s *Store) Record(ctx context.Context, a history.Attempt) error {
	a, err := history.Prepare(a)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (
            id, session_id, reference, candidate, percentage, matched, total, language, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.Reference, a.Candidate, a.Percentage,
		a.Matched, a.Total, a.Language, a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert attempt: %w", err)
	}
	return nil
}

// List implements history.Store.
func (s *Store) List(ctx context.Context, q history.Query) ([]history.Attempt, error) {
	query := `SELECT id, session_id, reference, candidate, percentage, matched, total, language, created_at
        FROM attempts`
	var args []any
	if q.SessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, q.SessionID)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, history.EffectiveLimit(q))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list attempts: %w", err)
	}
	defer rows.Close()

	out := []history.Attempt{}
	for rows.Next() {
		var (
			a       history.Attempt
			created string
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Reference, &a.Candidate,
			&a.Percentage, &a.Matched, &a.Total, &a.Language, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan attempt: %w", err)
		}
		if a.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("sqlite: parse created_at %q: %w", created, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate attempts: %w", err)
	}
	return out, nil
}

// Ping implements history.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements history.Store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("sqlite: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: ensure schema_migrations: %w", err)
	}
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("sqlite: scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("sqlite: read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("sqlite: apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("sqlite: record migration %s: %w", version, err)
		}
	}
	return tx.Commit()
}
