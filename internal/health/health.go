// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when every required
//     [Checker] passes.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map containing the result of each named checker. The same
// checks back the `speakezctl deps` command through [Handler.Run].
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when it is usable.
type Checker struct {
	Name     string // JSON key, e.g. "workspace" or "ffmpeg"
	Check    func(ctx context.Context) error
	Optional bool // reported, never fails readiness
}

// Result is the outcome of one [Checker].
type Result struct {
	Name     string
	Optional bool
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the check passed.
func (r Result) OK() bool { return r.Err == nil }

// Label renders the result as it appears in the readiness body: "ok",
// "warn: <err>" or "fail: <err>".
func (r Result) Label() string {
	switch {
	case r.OK():
		return "ok"
	case r.Optional:
		return "warn: " + r.Err.Error()
	}
	return "fail: " + r.Err.Error()
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz from a fixed list of checkers.
type Handler struct {
	checkers []Checker
}

// New returns a Handler for checkers.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: slices.Clone(checkers)}
}

// Run evaluates every checker concurrently, each bounded by its own
// five-second deadline, and returns the results in registration order.
func (h *Handler) Run(ctx context.Context) []Result {
	results := make([]Result, len(h.checkers))
	var g errgroup.Group
	for i, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			results[i] = Result{Name: c.Name, Optional: c.Optional, Err: err, Elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Ready reports whether every required result passed.
func Ready(results []Result) bool {
	return !slices.ContainsFunc(results, func(r Result) bool { return !r.OK() && !r.Optional })
}

// Healthz always answers 200; serving HTTP is proof of life.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz answers 200 when every required check passes and 503 otherwise.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := h.Run(r.Context())
	rep := report{Status: "ok", Checks: make(map[string]string, len(results))}
	for _, res := range results {
		rep.Checks[res.Name] = res.Label()
	}
	status := http.StatusOK
	if !Ready(results) {
		rep.Status, status = "fail", http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
