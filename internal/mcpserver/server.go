// Package mcpserver exposes pronunciation scoring to MCP clients over the
// streamable HTTP transport.
//
// Tools:
//   - score_pronunciation: scores a candidate text against a reference text.
//   - recent_attempts: lists recorded checks, when a history store is set.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/speakez/internal/hint"
	"github.com/MrWong99/speakez/internal/history"
	"github.com/MrWong99/speakez/internal/practice"
	"github.com/MrWong99/speakez/pkg/scoring"
)

// ScoreInput is the argument of score_pronunciation.
type ScoreInput struct {
	Reference string `json:"reference" jsonschema:"the text the learner meant to say"`
	Candidate string `json:"candidate" jsonschema:"the text that was actually heard or typed"`
}

// ScoreOutput is the structured result of score_pronunciation.
type ScoreOutput struct {
	Percentage  float64              `json:"percentage"`
	Formatted   string               `json:"formatted"`
	Matched     int                  `json:"matched"`
	Total       int                  `json:"total"`
	Annotations []scoring.Annotation `json:"annotations"`
	Message     string               `json:"message,omitempty"`
	Hints       []hint.Hint          `json:"hints,omitempty"`
}

// AttemptsInput is the argument of recent_attempts.
type AttemptsInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"restrict results to one practice session"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of attempts, newest first"`
}

// Attempt is one recorded check as reported to MCP clients.
type Attempt struct {
	SessionID  string  `json:"session_id"`
	Reference  string  `json:"reference"`
	Candidate  string  `json:"candidate"`
	Percentage float64 `json:"percentage"`
	Language   string  `json:"language,omitempty"`
	CreatedAt  string  `json:"created_at" jsonschema:"RFC 3339 timestamp"`
}

// AttemptsOutput is the structured result of recent_attempts.
type AttemptsOutput struct {
	Attempts []Attempt `json:"attempts"`
}

// Option configures a [Server].
type Option func(*Server)

// WithHints adds nearest-word hints to score results.
func WithHints(h *hint.Suggester) Option {
	return func(s *Server) { s.hints = h }
}

// WithHistory registers the recent_attempts tool.
func WithHistory(store history.Store) Option {
	return func(s *Server) { s.history = store }
}

// Server wraps an MCP server with the speakez tools registered.
type Server struct {
	mcp     *mcp.Server
	hints   *hint.Suggester
	history history.Store
}

// New creates a Server. version is reported to clients.
func New(version string, opts ...Option) *Server {
	s := &Server{}
	for _, o := range opts {
		o(s)
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "speakez", Version: version}, nil)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "score_pronunciation",
		Description: "Score how many unique reference words appear in the candidate text, case-insensitively. Returns the percentage and a per-word match annotation.",
	}, s.score)

	if s.history != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "recent_attempts",
			Description: "List recorded pronunciation checks, newest first.",
		}, s.attempts)
	}
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Handler returns the streamable HTTP handler serving s.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

func (s *Server) score(_ context.Context, _ *mcp.CallToolRequest, in ScoreInput) (*mcp.CallToolResult, ScoreOutput, error) {
	res := scoring.Score(in.Reference, in.Candidate)
	out := ScoreOutput{
		Percentage:  res.Percentage,
		Formatted:   res.Format(),
		Matched:     res.Matched(),
		Total:       res.Total(),
		Annotations: res.Annotations,
	}
	if out.Annotations == nil {
		out.Annotations = []scoring.Annotation{}
	}
	if res.NoMatch() {
		out.Message = practice.NoMatchMessage
	}
	if s.hints != nil {
		out.Hints = s.hints.Suggest(res, in.Candidate)
	}
	return nil, out, nil
}

func (s *Server) attempts(ctx context.Context, _ *mcp.CallToolRequest, in AttemptsInput) (*mcp.CallToolResult, AttemptsOutput, error) {
	if in.Limit < 0 {
		return nil, AttemptsOutput{}, errors.New("mcpserver: limit must not be negative")
	}
	list, err := s.history.List(ctx, history.Query{SessionID: in.SessionID, Limit: in.Limit})
	if err != nil {
		return nil, AttemptsOutput{}, fmt.Errorf("mcpserver: list attempts: %w", err)
	}
	out := AttemptsOutput{Attempts: make([]Attempt, 0, len(list))}
	for _, a := range list {
		out.Attempts = append(out.Attempts, Attempt{
			SessionID:  a.SessionID,
			Reference:  a.Reference,
			Candidate:  a.Candidate,
			Percentage: a.Percentage,
			Language:   a.Language,
			CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}
