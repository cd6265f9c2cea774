package domain

import (
	"context"
	"time"
)

// LedgerTx is the write view of the round ledger inside one atomic unit.
// Reads through a LedgerTx observe the writes made earlier in the same unit.
type LedgerTx interface {
	// State returns the process state, or ErrNotFound before first init.
	State(ctx context.Context) (State, error)
	SaveState(ctx context.Context, st State) error

	Round(ctx context.Context, epoch int64) (Round, error)
	// CreateRound fails with ErrAlreadyExists when the epoch is taken.
	CreateRound(ctx context.Context, r Round) error
	UpdateRound(ctx context.Context, r Round) error

	Bet(ctx context.Context, epoch int64, user string) (BetInfo, error)
	// RecordBet stores a new bet and appends its epoch to the user's index.
	// It fails with ErrDuplicateBet when the user already bet in the epoch.
	RecordBet(ctx context.Context, b BetInfo) error
	MarkClaimed(ctx context.Context, epoch int64, user string) error
}

// Ledger is the durable store of rounds, bets, the per-user index and the
// process state.
type Ledger interface {
	// Atomic runs fn in a single all-or-nothing unit. When fn returns an
	// error nothing it wrote is kept. The ctx passed to fn is bound to the
	// unit so collaborators sharing the backend can join it.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	GetState(ctx context.Context) (State, error)
	GetRound(ctx context.Context, epoch int64) (Round, error)
	GetBet(ctx context.Context, epoch int64, user string) (BetInfo, error)
	// UserRounds returns up to size entries of the user's index starting at
	// cursor, oldest first.
	UserRounds(ctx context.Context, user string, cursor, size int) ([]UserRound, error)
	UserRoundsLength(ctx context.Context, user string) (int, error)
	// ListRounds returns rounds with from <= epoch <= to in epoch order.
	ListRounds(ctx context.Context, from, to int64) ([]Round, error)
	ListBets(ctx context.Context, epoch int64) ([]BetInfo, error)
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
