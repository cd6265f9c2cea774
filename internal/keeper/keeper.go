// Package keeper is the external trigger that advances rounds on schedule
// and periodically archives finished rounds.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Action names what a tick did.
type Action string

const (
	ActionNone         Action = "none"
	ActionGenesisStart Action = "genesis_start"
	ActionGenesisLock  Action = "genesis_lock"
	ActionExecute      Action = "execute"
	ActionRestart      Action = "restart"
)

// Keeper polls the engine and issues whichever scheduler command is due.
// Failed commands are not retried immediately; the next tick re-evaluates.
// When a lock window has been missed entirely the keeper pauses and
// unpauses the engine, which restarts the genesis sequence. A restart whose
// unpause failed is finished on a later tick; pauses made by anyone else
// leave the keeper idle.
type Keeper struct {
	op     Operator
	poll   time.Duration
	now    func() time.Time
	logger *slog.Logger

	// restarting is set from a successful pause until the matching unpause
	// succeeds. Tick is only called from one goroutine.
	restarting bool
}

// New creates a Keeper polling every poll.
func New(op Operator, poll time.Duration, logger *slog.Logger) *Keeper {
	if poll <= 0 {
		poll = time.Second
	}
	return &Keeper{
		op:     op,
		poll:   poll,
		now:    time.Now,
		logger: logger.With(slog.String("component", "keeper")),
	}
}

// Run ticks until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.InfoContext(ctx, "keeper started", slog.Duration("poll", k.poll))
	ticker := time.NewTicker(k.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("keeper stopped")
			return ctx.Err()
		case <-ticker.C:
			action, err := k.Tick(ctx)
			if err != nil {
				k.logger.WarnContext(ctx, "keeper tick failed",
					slog.String("action", string(action)),
					slog.String("error", err.Error()),
				)
				continue
			}
			if action != ActionNone {
				k.logger.InfoContext(ctx, "keeper advanced rounds", slog.String("action", string(action)))
			}
		}
	}
}

// Tick evaluates the schedule once and runs at most one command.
func (k *Keeper) Tick(ctx context.Context) (Action, error) {
	st, err := k.op.State(ctx)
	if err != nil {
		return ActionNone, fmt.Errorf("keeper: state: %w", err)
	}
	if st.Paused {
		if !k.restarting {
			return ActionNone, nil
		}
		return ActionRestart, k.finishRestart(ctx)
	}
	k.restarting = false
	if st.Phase() == domain.PhaseGenesisPending {
		return ActionGenesisStart, k.op.GenesisStartRound(ctx)
	}

	cur, err := k.op.Round(ctx, st.CurrentEpoch)
	if err != nil {
		return ActionNone, fmt.Errorf("keeper: round %d: %w", st.CurrentEpoch, err)
	}
	now := k.now().UTC()
	if now.Before(cur.LockTime) {
		return ActionNone, nil
	}
	if now.After(cur.LockTime.Add(st.Params.Buffer)) {
		return ActionRestart, k.restart(ctx, st.CurrentEpoch)
	}
	if st.Phase() == domain.PhaseGenesisStarted {
		return ActionGenesisLock, k.op.GenesisLockRound(ctx)
	}
	return ActionExecute, k.op.ExecuteRound(ctx)
}

// restart recovers from a missed window. Unpause resets the genesis flags,
// so the next tick starts a fresh round.
func (k *Keeper) restart(ctx context.Context, epoch int64) error {
	k.logger.WarnContext(ctx, "lock window missed, restarting genesis", slog.Int64("epoch", epoch))
	if err := k.op.Pause(ctx); err != nil && !errors.Is(err, domain.ErrPaused) {
		return fmt.Errorf("keeper: pause: %w", err)
	}
	k.restarting = true
	return k.finishRestart(ctx)
}

func (k *Keeper) finishRestart(ctx context.Context) error {
	if err := k.op.Unpause(ctx); err != nil && !errors.Is(err, domain.ErrNotPaused) {
		return fmt.Errorf("keeper: unpause: %w", err)
	}
	k.restarting = false
	return nil
}
