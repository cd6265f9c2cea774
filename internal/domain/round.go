package domain

import (
	"fmt"
	"strings"
	"time"
)

// Position is the side a bet is placed on.
type Position string

const (
	PositionBull Position = "bull"
	PositionBear Position = "bear"
)

// ParsePosition accepts "bull"/"bear" in any case.
func ParsePosition(s string) (Position, error) {
	switch Position(strings.ToLower(strings.TrimSpace(s))) {
	case PositionBull:
		return PositionBull, nil
	case PositionBear:
		return PositionBear, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPosition, s)
	}
}

// Valid reports whether p is one of the two outcome positions.
func (p Position) Valid() bool {
	return p == PositionBull || p == PositionBear
}

// Round is the record of one epoch. Timestamps are second-granular; a zero
// time means "not set".
type Round struct {
	Epoch               int64     `json:"epoch"`
	StartTime           time.Time `json:"start_time"`
	LockTime            time.Time `json:"lock_time"`
	CloseTime           time.Time `json:"close_time"`
	LockPrice           int64     `json:"lock_price"`
	ClosePrice          int64     `json:"close_price"`
	LockOracleRoundID   RoundID   `json:"lock_oracle_round_id"`
	CloseOracleRoundID  RoundID   `json:"close_oracle_round_id"`
	TotalAmount         int64     `json:"total_amount"`
	BullAmount          int64     `json:"bull_amount"`
	BearAmount          int64     `json:"bear_amount"`
	RewardBaseCalAmount int64     `json:"reward_base_cal_amount"`
	RewardAmount        int64     `json:"reward_amount"`
	OracleCalled        bool      `json:"oracle_called"`
	RewardsCalculated   bool      `json:"rewards_calculated"`
}

// Started reports whether the round has a start record.
func (r Round) Started() bool { return !r.StartTime.IsZero() }

// Locked reports whether the lock step has run.
func (r Round) Locked() bool { return !r.LockOracleRoundID.IsZero() }

// Winner returns the winning position of an ended round, or "" for a tie or
// a round the oracle never closed.
func (r Round) Winner() Position {
	if !r.OracleCalled {
		return ""
	}
	switch {
	case r.ClosePrice > r.LockPrice:
		return PositionBull
	case r.ClosePrice < r.LockPrice:
		return PositionBear
	default:
		return ""
	}
}

// BetInfo is one user's stake in one epoch.
type BetInfo struct {
	Epoch    int64    `json:"epoch"`
	User     string   `json:"user"`
	Position Position `json:"position"`
	Amount   int64    `json:"amount"`
	Claimed  bool     `json:"claimed"`
}

// UserRound pairs an epoch from a user's index with the bet placed in it.
type UserRound struct {
	Epoch int64   `json:"epoch"`
	Bet   BetInfo `json:"bet"`
}

// Params are the tunable engine parameters. They can only change while the
// engine is paused.
type Params struct {
	Interval              time.Duration `json:"interval"`
	Buffer                time.Duration `json:"buffer"`
	MinBetAmount          int64         `json:"min_bet_amount"`
	TreasuryFeeBps        int64         `json:"treasury_fee_bps"`
	OracleAddress         string        `json:"oracle_address"`
	OracleUpdateAllowance time.Duration `json:"oracle_update_allowance"`
}

// MaxTreasuryFeeBps caps the treasury fee at 10%.
const MaxTreasuryFeeBps = 1000

// Validate enforces the parameter bounds.
func (p Params) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("%w: interval must be > 0", ErrInvalidParam)
	}
	if p.Buffer < 0 || p.Buffer >= p.Interval {
		return fmt.Errorf("%w: bufferSeconds must be inferior to intervalSeconds", ErrInvalidParam)
	}
	if p.MinBetAmount <= 0 {
		return fmt.Errorf("%w: must be superior to 0", ErrInvalidParam)
	}
	if p.TreasuryFeeBps < 0 || p.TreasuryFeeBps > MaxTreasuryFeeBps {
		return fmt.Errorf("%w: treasury fee too high", ErrInvalidParam)
	}
	if p.OracleUpdateAllowance < 0 {
		return fmt.Errorf("%w: oracle update allowance must be >= 0", ErrInvalidParam)
	}
	return nil
}

// State is the process-wide engine state. It is persisted as a single row
// and threaded through every operation explicitly.
type State struct {
	CurrentEpoch        int64   `json:"current_epoch"`
	GenesisStartOnce    bool    `json:"genesis_start_once"`
	GenesisLockOnce     bool    `json:"genesis_lock_once"`
	Paused              bool    `json:"paused"`
	OracleLatestRoundID RoundID `json:"oracle_latest_round_id"`
	TreasuryAmount      int64   `json:"treasury_amount"`
	Params              Params  `json:"params"`
}

// Phase names the process-wide scheduler phase.
type Phase string

const (
	PhaseGenesisPending Phase = "genesis_pending"
	PhaseGenesisStarted Phase = "genesis_started"
	PhaseRunning        Phase = "running"
)

// Phase derives the scheduler phase from the genesis flags.
func (s State) Phase() Phase {
	switch {
	case s.GenesisStartOnce && s.GenesisLockOnce:
		return PhaseRunning
	case s.GenesisStartOnce:
		return PhaseGenesisStarted
	default:
		return PhaseGenesisPending
	}
}
