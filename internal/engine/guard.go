package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// DefaultGuardWait bounds how long a call queues for the guard.
const DefaultGuardWait = 30 * time.Second

type guardKey struct{}

// guard is the engine's exclusive re-entry guard. Holders mark their
// context; a call arriving with a marked context is a re-entry and fails at
// once, while calls from other paths queue for the slot.
//
// A re-entry through a context that lost the mark (a collaborator calling
// back with context.Background) cannot be told apart from a queued caller.
// The wait bound turns that deadlock into ErrGuardTimeout.
type guard struct {
	slot chan struct{}
	wait time.Duration
}

func newGuard(wait time.Duration) *guard {
	if wait <= 0 {
		wait = DefaultGuardWait
	}
	return &guard{slot: make(chan struct{}, 1), wait: wait}
}

func (g *guard) enter(ctx context.Context) (context.Context, func(), error) {
	if held, _ := ctx.Value(guardKey{}).(*guard); held == g {
		return ctx, nil, domain.ErrGuardHeld
	}
	timer := time.NewTimer(g.wait)
	defer timer.Stop()
	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx, nil, ctx.Err()
	case <-timer.C:
		return ctx, nil, fmt.Errorf("waited %s: %w", g.wait, domain.ErrGuardTimeout)
	}
	return context.WithValue(ctx, guardKey{}, g), func() { <-g.slot }, nil
}
