package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Claim pays out the caller's winnings and refunds for epochs. The batch is
// all-or-nothing: one ineligible epoch rejects the whole call. The total is
// transferred once at the end of the unit.
func (e *Engine) Claim(ctx context.Context, caller string, epochs []int64) (int64, error) {
	if caller == "" {
		return 0, fmt.Errorf("engine: claim: %w", domain.ErrMissingCaller)
	}
	var total int64
	err := e.mutate(ctx, "claim", func(ctx context.Context, u *unit) error {
		total = 0
		for _, epoch := range epochs {
			r, err := u.tx.Round(ctx, epoch)
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("epoch %d: %w", epoch, domain.ErrRoundNotStarted)
			}
			if err != nil {
				return fmt.Errorf("load round %d: %w", epoch, err)
			}
			if !r.Started() {
				return fmt.Errorf("epoch %d: %w", epoch, domain.ErrRoundNotStarted)
			}
			if !u.now.After(r.CloseTime) {
				return fmt.Errorf("epoch %d: %w", epoch, domain.ErrRoundNotClosed)
			}

			b, err := u.tx.Bet(ctx, epoch, caller)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("load bet %d: %w", epoch, err)
			}

			var reward int64
			if r.OracleCalled {
				if !claimable(r, b) {
					return fmt.Errorf("epoch %d: %w", epoch, domain.ErrNotEligibleClaim)
				}
				reward = mulDiv(b.Amount, r.RewardAmount, r.RewardBaseCalAmount)
			} else {
				if !refundable(r, b, u.now, u.st.Params.Buffer) {
					return fmt.Errorf("epoch %d: %w", epoch, domain.ErrNotEligibleRefund)
				}
				reward = b.Amount
			}

			if err := u.tx.MarkClaimed(ctx, epoch, caller); err != nil {
				return fmt.Errorf("mark claimed %d: %w", epoch, err)
			}
			total += reward
			u.emit(domain.Event{Type: domain.EventClaim, Epoch: epoch, User: caller, Amount: reward})
		}

		if total > 0 {
			if err := e.vault.TransferOut(ctx, caller, total); err != nil {
				return fmt.Errorf("transfer out: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Claimable reports whether user can claim winnings for epoch.
func (e *Engine) Claimable(ctx context.Context, epoch int64, user string) (bool, error) {
	r, b, err := e.roundAndBet(ctx, epoch, user)
	if err != nil {
		return false, fmt.Errorf("engine: claimable: %w", err)
	}
	return claimable(r, b), nil
}

// Refundable reports whether user can take back the stake for epoch.
func (e *Engine) Refundable(ctx context.Context, epoch int64, user string) (bool, error) {
	st, err := e.ledger.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("engine: refundable: %w", err)
	}
	r, b, err := e.roundAndBet(ctx, epoch, user)
	if err != nil {
		return false, fmt.Errorf("engine: refundable: %w", err)
	}
	return refundable(r, b, e.Now(), st.Params.Buffer), nil
}

// roundAndBet loads a round and a bet, treating missing records as zero.
func (e *Engine) roundAndBet(ctx context.Context, epoch int64, user string) (domain.Round, domain.BetInfo, error) {
	r, err := e.ledger.GetRound(ctx, epoch)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, domain.BetInfo{}, err
	}
	b, err := e.ledger.GetBet(ctx, epoch, user)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Round{}, domain.BetInfo{}, err
	}
	return r, b, nil
}

func claimable(r domain.Round, b domain.BetInfo) bool {
	if !r.OracleCalled || b.Amount == 0 || b.Claimed {
		return false
	}
	w := r.Winner()
	return w != "" && w == b.Position
}

func refundable(r domain.Round, b domain.BetInfo, now time.Time, buffer time.Duration) bool {
	return !r.OracleCalled &&
		!b.Claimed &&
		now.After(r.CloseTime.Add(buffer)) &&
		b.Amount != 0
}
