// Package postgres provides a PostgreSQL-backed history.Store using pgx.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/speakez/internal/history"
)

const ddlAttempts = `
CREATE TABLE IF NOT EXISTS attempts (
    id          TEXT              PRIMARY KEY,
    session_id  TEXT              NOT NULL,
    reference   TEXT              NOT NULL,
    candidate   TEXT              NOT NULL,
    percentage  DOUBLE PRECISION  NOT NULL,
    matched     INTEGER           NOT NULL,
    total       INTEGER           NOT NULL,
    language    TEXT              NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_session_created
    ON attempts (session_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_attempts_created
    ON attempts (created_at DESC);
`

var _ history.Store = (*Store)(nil)

// Store persists attempts in PostgreSQL. All methods are safe for concurrent
// use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a connection pool to dsn, pings it and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the attempts table and its indexes if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlAttempts); err != nil {
		return fmt.Errorf("create attempts: %w", err)
	}
	return nil
}

// Record implements history.Store.
func (s *Store) Record(ctx context.Context, a history.Attempt) error {
	a, err := history.Prepare(a)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO attempts
		    (id, session_id, reference, candidate, percentage, matched, total, language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := s.pool.Exec(ctx, q,
		a.ID, a.SessionID, a.Reference, a.Candidate, a.Percentage,
		a.Matched, a.Total, a.Language, a.CreatedAt,
	); err != nil {
		return fmt.Errorf("postgres: insert attempt: %w", err)
	}
	return nil
}

// List implements history.Store.
func (s *Store) List(ctx context.Context, q history.Query) ([]history.Attempt, error) {
	sql, args := listQuery(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attempts: %w", err)
	}
	return collectAttempts(rows)
}

// Ping implements history.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements history.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func listQuery(q history.Query) (string, []any) {
	var args []any
	sql := "SELECT id, session_id, reference, candidate, percentage, matched, total, language, created_at\n" +
		"FROM   attempts\n"
	if q.SessionID != "" {
		args = append(args, q.SessionID)
		sql += "WHERE  session_id = $1\n"
	}
	args = append(args, history.EffectiveLimit(q))
	sql += fmt.Sprintf("ORDER  BY created_at DESC\nLIMIT  $%d", len(args))
	return sql, args
}

// collectAttempts scans pgx rows into attempts.
func collectAttempts(rows pgx.Rows) ([]history.Attempt, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Attempt, error) {
		var a history.Attempt
		err := row.Scan(&a.ID, &a.SessionID, &a.Reference, &a.Candidate,
			&a.Percentage, &a.Matched, &a.Total, &a.Language, &a.CreatedAt)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan rows: %w", err)
	}
	if out == nil {
		out = []history.Attempt{}
	}
	return out, nil
}
