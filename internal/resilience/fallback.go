package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed wraps the last error once every member of a [FallbackGroup]
// has failed or been skipped.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig holds the breaker settings applied to each member.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type member[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered chain of interchangeable providers, each behind
// its own breaker. Calls go to the first member whose breaker admits them
// and move down the chain on failure.
//
// Add every fallback before sharing the group between goroutines.
type FallbackGroup[T any] struct {
	members []member[T]
	cfg     FallbackConfig
}

// NewFallbackGroup starts a chain with primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a member to the end of the chain.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.members = append(fg.members, member[T]{name: name, value: fallback, breaker: NewCircuitBreaker(bc)})
}

// Len counts the members, primary included.
func (fg *FallbackGroup[T]) Len() int { return len(fg.members) }

// EntryStatus is one member's name and breaker state.
type EntryStatus struct {
	Name  string `json:"name"`
	State State  `json:"state"`
}

// Status lists every member in chain order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	out := make([]EntryStatus, 0, len(fg.members))
	for _, m := range fg.members {
		out = append(out, EntryStatus{Name: m.name, State: m.breaker.State()})
	}
	return out
}

// Execute runs fn down the chain until one member succeeds.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. Context cancellation stops the walk immediately because every later
// member would see the same context.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, m := range fg.members {
		var out R
		err := m.breaker.Execute(func() (err error) {
			out, err = fn(m.value)
			return err
		})
		switch {
		case err == nil:
			return out, nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return zero, err
		case errors.Is(err, ErrCircuitOpen):
			slog.Debug("provider skipped, circuit open", "provider", m.name)
		default:
			slog.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
