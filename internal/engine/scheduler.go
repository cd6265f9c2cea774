package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/updown/internal/domain"
)

// GenesisStartRound opens the first round. It may run once per genesis.
func (e *Engine) GenesisStartRound(ctx context.Context, caller string) error {
	if err := e.require(ctx, caller, domain.RoleOperator); err != nil {
		return fmt.Errorf("engine: genesis start round: %w", err)
	}
	return e.mutate(ctx, "genesis start round", func(ctx context.Context, u *unit) error {
		if u.st.Paused {
			return domain.ErrPaused
		}
		if u.st.GenesisStartOnce {
			return domain.ErrGenesisStarted
		}
		u.st.CurrentEpoch++
		if err := u.startRound(ctx, u.st.CurrentEpoch); err != nil {
			return err
		}
		u.st.GenesisStartOnce = true
		return nil
	})
}

// GenesisLockRound locks the genesis round with the first oracle price and
// opens the next round unconditionally.
func (e *Engine) GenesisLockRound(ctx context.Context, caller string) error {
	if err := e.require(ctx, caller, domain.RoleOperator); err != nil {
		return fmt.Errorf("engine: genesis lock round: %w", err)
	}
	return e.mutate(ctx, "genesis lock round", func(ctx context.Context, u *unit) error {
		if u.st.Paused {
			return domain.ErrPaused
		}
		if !u.st.GenesisStartOnce {
			return domain.ErrGenesisNotStarted
		}
		if u.st.GenesisLockOnce {
			return domain.ErrGenesisLocked
		}

		snap, err := e.gateway.FetchPrice(ctx, &u.st, u.now)
		if err != nil {
			return err
		}
		if err := u.safeLockRound(ctx, u.st.CurrentEpoch, snap); err != nil {
			return err
		}
		u.st.CurrentEpoch++
		if err := u.startRound(ctx, u.st.CurrentEpoch); err != nil {
			return err
		}
		u.st.GenesisLockOnce = true
		return nil
	})
}

// ExecuteRound is the steady-state step: lock the current round, end and
// settle the previous one, then open the next.
func (e *Engine) ExecuteRound(ctx context.Context, caller string) error {
	if err := e.require(ctx, caller, domain.RoleOperator); err != nil {
		return fmt.Errorf("engine: execute round: %w", err)
	}
	return e.mutate(ctx, "execute round", func(ctx context.Context, u *unit) error {
		if u.st.Paused {
			return domain.ErrPaused
		}
		if !u.st.GenesisStartOnce || !u.st.GenesisLockOnce {
			return domain.ErrGenesisNotLocked
		}

		snap, err := e.gateway.FetchPrice(ctx, &u.st, u.now)
		if err != nil {
			return err
		}

		cur := u.st.CurrentEpoch
		if err := u.safeLockRound(ctx, cur, snap); err != nil {
			return err
		}
		if err := u.safeEndRound(ctx, cur-1, snap); err != nil {
			return err
		}
		if err := u.settle(ctx, cur-1); err != nil {
			return err
		}

		u.st.CurrentEpoch++
		if err := u.safeStartRound(ctx, u.st.CurrentEpoch); err != nil {
			return err
		}
		e.logger.DebugContext(ctx, "round executed",
			slog.Int64("locked", cur),
			slog.Int64("ended", cur-1),
			slog.String("oracle_round_id", snap.RoundID.String()),
		)
		return nil
	})
}

func (u *unit) startRound(ctx context.Context, epoch int64) error {
	interval := u.st.Params.Interval
	r := domain.Round{
		Epoch:     epoch,
		StartTime: u.now,
		LockTime:  u.now.Add(interval),
		CloseTime: u.now.Add(2 * interval),
	}
	if err := u.tx.CreateRound(ctx, r); err != nil {
		return fmt.Errorf("start round %d: %w", epoch, err)
	}
	u.emit(domain.Event{Type: domain.EventStartRound, Epoch: epoch})
	return nil
}

// safeStartRound opens epoch only once round epoch-2 has ended.
func (u *unit) safeStartRound(ctx context.Context, epoch int64) error {
	if !u.st.GenesisStartOnce {
		return domain.ErrGenesisNotStarted
	}
	prev, err := u.tx.Round(ctx, epoch-2)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrStartPrevNotEnded
	}
	if err != nil {
		return fmt.Errorf("load round %d: %w", epoch-2, err)
	}
	if prev.CloseTime.IsZero() {
		return domain.ErrStartPrevNotEnded
	}
	if u.now.Before(prev.CloseTime) {
		return domain.ErrStartTooEarly
	}
	return u.startRound(ctx, epoch)
}

// safeLockRound records the lock price while now is inside the lock window.
func (u *unit) safeLockRound(ctx context.Context, epoch int64, snap domain.Snapshot) error {
	r, err := u.tx.Round(ctx, epoch)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrLockNotStarted
	}
	if err != nil {
		return fmt.Errorf("load round %d: %w", epoch, err)
	}
	if !r.Started() {
		return domain.ErrLockNotStarted
	}
	if u.now.Before(r.LockTime) {
		return domain.ErrLockTooEarly
	}
	if u.now.After(r.LockTime.Add(u.st.Params.Buffer)) {
		return domain.ErrLockTooLate
	}

	r.CloseTime = u.now.Add(u.st.Params.Interval)
	r.LockPrice = snap.Price
	r.LockOracleRoundID = snap.RoundID
	if err := u.tx.UpdateRound(ctx, r); err != nil {
		return fmt.Errorf("lock round %d: %w", epoch, err)
	}
	u.emit(domain.Event{
		Type:          domain.EventLockRound,
		Epoch:         epoch,
		OracleRoundID: snap.RoundID,
		Price:         snap.Price,
	})
	return nil
}

// safeEndRound records the close price while now is inside the close window.
func (u *unit) safeEndRound(ctx context.Context, epoch int64, snap domain.Snapshot) error {
	r, err := u.tx.Round(ctx, epoch)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrEndNotLocked
	}
	if err != nil {
		return fmt.Errorf("load round %d: %w", epoch, err)
	}
	if !r.Locked() {
		return domain.ErrEndNotLocked
	}
	if u.now.Before(r.CloseTime) {
		return domain.ErrEndTooEarly
	}
	if u.now.After(r.CloseTime.Add(u.st.Params.Buffer)) {
		return domain.ErrEndTooLate
	}

	r.ClosePrice = snap.Price
	r.CloseOracleRoundID = snap.RoundID
	r.OracleCalled = true
	if err := u.tx.UpdateRound(ctx, r); err != nil {
		return fmt.Errorf("end round %d: %w", epoch, err)
	}
	u.emit(domain.Event{
		Type:          domain.EventEndRound,
		Epoch:         epoch,
		OracleRoundID: snap.RoundID,
		Price:         snap.Price,
	})
	return nil
}
