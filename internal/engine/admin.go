package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Pause stops scheduling and betting. Rounds in flight are never ended and
// become refundable once their close window passes.
func (e *Engine) Pause(ctx context.Context, caller string) error {
	if err := e.requireAdminOrOperator(ctx, caller); err != nil {
		return fmt.Errorf("engine: pause: %w", err)
	}
	return e.mutate(ctx, "pause", func(ctx context.Context, u *unit) error {
		if u.st.Paused {
			return domain.ErrPaused
		}
		u.st.Paused = true
		u.emit(domain.Event{Type: domain.EventPause, Epoch: u.st.CurrentEpoch})
		return nil
	})
}

// Unpause resumes the engine. The genesis steps must run again.
func (e *Engine) Unpause(ctx context.Context, caller string) error {
	if err := e.requireAdminOrOperator(ctx, caller); err != nil {
		return fmt.Errorf("engine: unpause: %w", err)
	}
	return e.mutate(ctx, "unpause", func(ctx context.Context, u *unit) error {
		if !u.st.Paused {
			return domain.ErrNotPaused
		}
		u.st.Paused = false
		u.st.GenesisStartOnce = false
		u.st.GenesisLockOnce = false
		u.emit(domain.Event{Type: domain.EventUnpause, Epoch: u.st.CurrentEpoch})
		return nil
	})
}

// SetBufferAndInterval changes the round timing.
func (e *Engine) SetBufferAndInterval(ctx context.Context, caller string, buffer, interval time.Duration) error {
	return e.setParams(ctx, caller, "set buffer and interval", domain.EventNewBufferInterval, func(p *domain.Params) error {
		if buffer >= interval {
			return fmt.Errorf("%w: bufferSeconds must be inferior to intervalSeconds", domain.ErrInvalidParam)
		}
		p.Buffer = buffer.Truncate(time.Second)
		p.Interval = interval.Truncate(time.Second)
		return nil
	})
}

// SetMinBetAmount changes the minimum stake.
func (e *Engine) SetMinBetAmount(ctx context.Context, caller string, amount int64) error {
	return e.setParams(ctx, caller, "set min bet amount", domain.EventNewMinBetAmount, func(p *domain.Params) error {
		p.MinBetAmount = amount
		return nil
	})
}

// SetTreasuryFee changes the treasury fee in basis points.
func (e *Engine) SetTreasuryFee(ctx context.Context, caller string, feeBps int64) error {
	return e.setParams(ctx, caller, "set treasury fee", domain.EventNewTreasuryFee, func(p *domain.Params) error {
		p.TreasuryFeeBps = feeBps
		return nil
	})
}

// SetOracleUpdateAllowance changes the oracle freshness allowance.
func (e *Engine) SetOracleUpdateAllowance(ctx context.Context, caller string, allowance time.Duration) error {
	return e.setParams(ctx, caller, "set oracle update allowance", domain.EventNewOracleAllow, func(p *domain.Params) error {
		p.OracleUpdateAllowance = allowance.Truncate(time.Second)
		return nil
	})
}

// SetOracle points the engine at a new feed. The feed must answer a sanity
// read, and the oracle high-water mark restarts from zero.
func (e *Engine) SetOracle(ctx context.Context, caller, address string) error {
	if err := e.require(ctx, caller, domain.RoleAdmin); err != nil {
		return fmt.Errorf("engine: set oracle: %w", err)
	}
	if address == "" {
		return fmt.Errorf("engine: set oracle: %w", domain.ErrInvalidAddress)
	}
	return e.mutate(ctx, "set oracle", func(ctx context.Context, u *unit) error {
		if !u.st.Paused {
			return domain.ErrNotPaused
		}
		if err := e.gateway.Probe(ctx, address); err != nil {
			return err
		}
		u.st.Params.OracleAddress = address
		u.st.OracleLatestRoundID = domain.RoundID{}
		p := u.st.Params
		u.emit(domain.Event{Type: domain.EventNewOracle, Epoch: u.st.CurrentEpoch, Params: &p})
		return nil
	})
}

// ClaimTreasury drains the accumulated treasury and pays it out. It returns
// the amount paid.
func (e *Engine) ClaimTreasury(ctx context.Context, caller string) (int64, error) {
	if err := e.require(ctx, caller, domain.RoleAdmin); err != nil {
		return 0, fmt.Errorf("engine: claim treasury: %w", err)
	}
	to := e.cfg.TreasuryAccount
	if to == "" {
		to = caller
	}
	var amount int64
	err := e.mutate(ctx, "claim treasury", func(ctx context.Context, u *unit) error {
		amount = u.st.TreasuryAmount
		u.st.TreasuryAmount = 0
		if amount > 0 {
			if err := e.vault.TransferOut(ctx, to, amount); err != nil {
				return fmt.Errorf("transfer out: %w", err)
			}
		}
		u.emit(domain.Event{Type: domain.EventTreasuryClaim, Epoch: u.st.CurrentEpoch, User: to, Amount: amount})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return amount, nil
}

// setParams applies change to the parameters while paused, validates the
// result and emits ev with the new parameters.
func (e *Engine) setParams(ctx context.Context, caller, op string, ev domain.EventType, change func(p *domain.Params) error) error {
	if err := e.require(ctx, caller, domain.RoleAdmin); err != nil {
		return fmt.Errorf("engine: %s: %w", op, err)
	}
	return e.mutate(ctx, op, func(ctx context.Context, u *unit) error {
		if !u.st.Paused {
			return domain.ErrNotPaused
		}
		p := u.st.Params
		if err := change(&p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		u.st.Params = p
		u.emit(domain.Event{Type: ev, Epoch: u.st.CurrentEpoch, Params: &p})
		return nil
	})
}
