package engine

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/updown/internal/domain"
)

// State returns the committed process state.
func (e *Engine) State(ctx context.Context) (domain.State, error) {
	st, err := e.ledger.GetState(ctx)
	if err != nil {
		return domain.State{}, fmt.Errorf("engine: state: %w", err)
	}
	return st, nil
}

// Round returns one round.
func (e *Engine) Round(ctx context.Context, epoch int64) (domain.Round, error) {
	r, err := e.ledger.GetRound(ctx, epoch)
	if err != nil {
		return domain.Round{}, fmt.Errorf("engine: round %d: %w", epoch, err)
	}
	return r, nil
}

// BetInfo returns user's bet in epoch.
func (e *Engine) BetInfo(ctx context.Context, epoch int64, user string) (domain.BetInfo, error) {
	b, err := e.ledger.GetBet(ctx, epoch, user)
	if err != nil {
		return domain.BetInfo{}, fmt.Errorf("engine: bet %d/%s: %w", epoch, user, err)
	}
	return b, nil
}

// UserRounds pages through the epochs user bet in, oldest first. The
// returned cursor continues the listing.
func (e *Engine) UserRounds(ctx context.Context, user string, cursor, size int) ([]domain.UserRound, int, error) {
	if cursor < 0 || size < 0 {
		return nil, cursor, fmt.Errorf("engine: user rounds: %w: negative cursor or size", domain.ErrInvalidParam)
	}
	n, err := e.ledger.UserRoundsLength(ctx, user)
	if err != nil {
		return nil, cursor, fmt.Errorf("engine: user rounds: %w", err)
	}
	if size > n-cursor {
		size = n - cursor
	}
	if size <= 0 {
		return []domain.UserRound{}, cursor, nil
	}
	out, err := e.ledger.UserRounds(ctx, user, cursor, size)
	if err != nil {
		return nil, cursor, fmt.Errorf("engine: user rounds: %w", err)
	}
	return out, cursor + len(out), nil
}

// UserRoundsLength returns how many epochs user bet in.
func (e *Engine) UserRoundsLength(ctx context.Context, user string) (int, error) {
	n, err := e.ledger.UserRoundsLength(ctx, user)
	if err != nil {
		return 0, fmt.Errorf("engine: user rounds length: %w", err)
	}
	return n, nil
}

// Rounds returns rounds with from <= epoch <= to.
func (e *Engine) Rounds(ctx context.Context, from, to int64) ([]domain.Round, error) {
	rs, err := e.ledger.ListRounds(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("engine: rounds: %w", err)
	}
	return rs, nil
}
