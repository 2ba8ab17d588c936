// Package history records every pronunciation check so learners can follow
// their progress across sessions.
//
// History is an append-only log of [Attempt] values. Four backends share the
// [Store] interface: an in-memory store for tests and ephemeral servers, a
// JSON-lines file, SQLite and PostgreSQL.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/speakez/pkg/scoring"
)

// DefaultLimit caps List results when Query.Limit is zero.
const DefaultLimit = 50

// ErrInvalidAttempt is returned by Record for attempts missing required fields.
var ErrInvalidAttempt = errors.New("history: attempt requires a session id")

// Attempt is one scored check.
type Attempt struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Reference  string    `json:"reference"`
	Candidate  string    `json:"candidate"`
	Percentage float64   `json:"percentage"`
	Matched    int       `json:"matched"`
	Total      int       `json:"total"`
	Language   string    `json:"language,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewAttempt builds an Attempt from a scoring result with a fresh id and the
// current time.
func NewAttempt(sessionID, language, reference, candidate string, res scoring.Result) Attempt {
	return Attempt{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Reference:  reference,
		Candidate:  candidate,
		Percentage: res.Percentage,
		Matched:    res.Matched(),
		Total:      res.Total(),
		Language:   language,
		CreatedAt:  time.Now().UTC(),
	}
}

// Query filters List results.
type Query struct {
	// SessionID restricts results to one session. Empty matches all.
	SessionID string

	// Limit caps the number of results. Zero means DefaultLimit.
	Limit int
}

// limit returns the effective limit of q.
func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

// Store persists attempts. All implementations must be safe for concurrent
// use.
type Store interface {
	// Record appends a. Attempts without an ID get one; a zero CreatedAt is
	// set to now.
	Record(ctx context.Context, a Attempt) error

	// List returns matching attempts, newest first.
	List(ctx context.Context, q Query) ([]Attempt, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Prepare validates a and fills in the ID and CreatedAt defaults. Backends
// call it at the top of Record.
func Prepare(a Attempt) (Attempt, error) {
	if a.SessionID == "" {
		return Attempt{}, ErrInvalidAttempt
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return a, nil
}

// Filter applies q to attempts already sorted newest first.
func Filter(attempts []Attempt, q Query) []Attempt {
	out := make([]Attempt, 0, min(len(attempts), q.limit()))
	for _, a := range attempts {
		if q.SessionID != "" && a.SessionID != q.SessionID {
			continue
		}
		out = append(out, a)
		if len(out) == q.limit() {
			break
		}
	}
	return out
}

// EffectiveLimit returns the limit backends should apply for q.
func EffectiveLimit(q Query) int { return q.limit() }
