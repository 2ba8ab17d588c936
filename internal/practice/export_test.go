package practice

import (
	"context"
	"time"
)

// DropIdle exposes the sweep's guarded delete.
func DropIdle(ctx context.Context, s *Service, id string, idleBefore time.Time) error {
	return s.drop(ctx, id, idleBefore)
}
