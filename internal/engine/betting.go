package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// BetBull stakes amount on the close price ending above the lock price.
func (e *Engine) BetBull(ctx context.Context, caller string, epoch, amount int64) error {
	return e.Bet(ctx, caller, epoch, domain.PositionBull, amount)
}

// BetBear stakes amount on the close price ending below the lock price.
func (e *Engine) BetBear(ctx context.Context, caller string, epoch, amount int64) error {
	return e.Bet(ctx, caller, epoch, domain.PositionBear, amount)
}

// Bet places the caller's single bet for the current epoch.
func (e *Engine) Bet(ctx context.Context, caller string, epoch int64, pos domain.Position, amount int64) error {
	if caller == "" {
		return fmt.Errorf("engine: bet: %w", domain.ErrMissingCaller)
	}
	if !pos.Valid() {
		return fmt.Errorf("engine: bet: %w", domain.ErrInvalidPosition)
	}
	return e.mutate(ctx, "bet", func(ctx context.Context, u *unit) error {
		if u.st.Paused {
			return domain.ErrPaused
		}
		if epoch != u.st.CurrentEpoch {
			return domain.ErrWrongEpoch
		}
		r, err := u.tx.Round(ctx, epoch)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load round %d: %w", epoch, err)
		}
		if !bettable(r, u.now) {
			return domain.ErrRoundNotBettable
		}
		if amount < u.st.Params.MinBetAmount {
			return domain.ErrBetTooSmall
		}
		if _, err := u.tx.Bet(ctx, epoch, caller); err == nil {
			return domain.ErrDuplicateBet
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load bet %d: %w", epoch, err)
		}

		r.TotalAmount += amount
		evType := domain.EventBetBull
		if pos == domain.PositionBull {
			r.BullAmount += amount
		} else {
			r.BearAmount += amount
			evType = domain.EventBetBear
		}
		if err := u.tx.UpdateRound(ctx, r); err != nil {
			return fmt.Errorf("update round %d: %w", epoch, err)
		}
		err = u.tx.RecordBet(ctx, domain.BetInfo{
			Epoch:    epoch,
			User:     caller,
			Position: pos,
			Amount:   amount,
		})
		if err != nil {
			return fmt.Errorf("record bet: %w", err)
		}
		if err := e.vault.TransferIn(ctx, caller, amount); err != nil {
			return fmt.Errorf("transfer in: %w", err)
		}
		u.emit(domain.Event{Type: evType, Epoch: epoch, User: caller, Amount: amount, Position: pos})
		return nil
	})
}

func bettable(r domain.Round, now time.Time) bool {
	return !r.StartTime.IsZero() &&
		!r.LockTime.IsZero() &&
		now.After(r.StartTime) &&
		now.Before(r.LockTime)
}
