package domain

import (
	"context"
	"time"
)

// EventType names a committed state change.
type EventType string

const (
	EventStartRound        EventType = "start_round"
	EventLockRound         EventType = "lock_round"
	EventEndRound          EventType = "end_round"
	EventBetBull           EventType = "bet_bull"
	EventBetBear           EventType = "bet_bear"
	EventRewardsCalculated EventType = "rewards_calculated"
	EventClaim             EventType = "claim"
	EventTreasuryClaim     EventType = "treasury_claim"
	EventPause             EventType = "pause"
	EventUnpause           EventType = "unpause"
	EventNewBufferInterval EventType = "new_buffer_and_interval"
	EventNewMinBetAmount   EventType = "new_min_bet_amount"
	EventNewTreasuryFee    EventType = "new_treasury_fee"
	EventNewOracle         EventType = "new_oracle"
	EventNewOracleAllow    EventType = "new_oracle_update_allowance"
)

// Event is a notification about a committed state change. Only the fields
// relevant to the type are set.
type Event struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Epoch         int64     `json:"epoch"`
	User          string    `json:"user,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Position      Position  `json:"position,omitempty"`
	OracleRoundID RoundID   `json:"oracle_round_id"`
	Price         int64     `json:"price,omitempty"`
	RewardBase    int64     `json:"reward_base,omitempty"`
	RewardAmount  int64     `json:"reward_amount,omitempty"`
	TreasuryCut   int64     `json:"treasury_cut,omitempty"`
	Params        *Params   `json:"params,omitempty"`
	At            time.Time `json:"at"`
}

// EventPublisher receives events after the unit that produced them has
// committed. Publish errors never undo the committed change.
type EventPublisher interface {
	Publish(ctx context.Context, events []Event) error
}
