package domain

import (
	"context"
	"time"
)

// Snapshot is one reading from a price feed.
type Snapshot struct {
	RoundID    RoundID
	Price      int64
	ReportedAt time.Time
}

// PriceFeed is the external price source.
type PriceFeed interface {
	Latest(ctx context.Context) (Snapshot, error)
}

// FeedResolver returns the PriceFeed behind an oracle address.
type FeedResolver interface {
	Resolve(ctx context.Context, address string) (PriceFeed, error)
}

// ValueLedger moves staked value between users and the engine. Both calls
// fail with ErrInsufficientFunds when the source cannot cover the amount.
// Implementations that call back into the engine must pass on the ctx they
// were given; a call back on a fresh context is only caught when the
// engine's guard wait expires, with ErrGuardTimeout.
type ValueLedger interface {
	TransferIn(ctx context.Context, from string, amount int64) error
	TransferOut(ctx context.Context, to string, amount int64) error
}

// Role is a privileged capability.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Authorizer answers whether caller holds role. It returns nil when the
// caller holds the role and a non-nil error otherwise.
type Authorizer interface {
	Authorize(ctx context.Context, caller string, role Role) error
}
