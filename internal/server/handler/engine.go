package handler

import (
	"context"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Engine is the subset of the settlement engine the HTTP API drives.
type Engine interface {
	State(ctx context.Context) (domain.State, error)
	Round(ctx context.Context, epoch int64) (domain.Round, error)
	Rounds(ctx context.Context, from, to int64) ([]domain.Round, error)
	BetInfo(ctx context.Context, epoch int64, user string) (domain.BetInfo, error)
	UserRounds(ctx context.Context, user string, cursor, size int) ([]domain.UserRound, int, error)
	UserRoundsLength(ctx context.Context, user string) (int, error)
	Claimable(ctx context.Context, epoch int64, user string) (bool, error)
	Refundable(ctx context.Context, epoch int64, user string) (bool, error)

	Bet(ctx context.Context, caller string, epoch int64, pos domain.Position, amount int64) error
	Claim(ctx context.Context, caller string, epochs []int64) (int64, error)

	GenesisStartRound(ctx context.Context, caller string) error
	GenesisLockRound(ctx context.Context, caller string) error
	ExecuteRound(ctx context.Context, caller string) error
	Pause(ctx context.Context, caller string) error
	Unpause(ctx context.Context, caller string) error
	SetBufferAndInterval(ctx context.Context, caller string, buffer, interval time.Duration) error
	SetMinBetAmount(ctx context.Context, caller string, amount int64) error
	SetTreasuryFee(ctx context.Context, caller string, feeBps int64) error
	SetOracle(ctx context.Context, caller, address string) error
	SetOracleUpdateAllowance(ctx context.Context, caller string, allowance time.Duration) error
	ClaimTreasury(ctx context.Context, caller string) (int64, error)
}
