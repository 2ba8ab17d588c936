package health

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Binary returns a checker that passes when the executable can be resolved
// through PATH (or is an existing absolute path).
func Binary(name, path string, optional bool) Checker {
	return Checker{
		Name:     name,
		Optional: optional,
		Check: func(context.Context) error {
			if strings.TrimSpace(path) == "" {
				return fmt.Errorf("no binary configured")
			}
			if _, err := exec.LookPath(path); err != nil {
				return fmt.Errorf("%s not found: %w", path, err)
			}
			return nil
		},
	}
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a checker that calls p.Ping.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Func wraps a context-free check such as a writability probe.
func Func(name string, fn func() error) Checker {
	return Checker{
		Name:  name,
		Check: func(context.Context) error { return fn() },
	}
}
