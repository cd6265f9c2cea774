// Package engine runs the round lifecycle: scheduling, betting, settlement,
// claims and the privileged parameter controls. Every mutating entry point
// is one guarded, all-or-nothing unit over the ledger; events are published
// only after the unit commits.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/oracle"
)

// Config holds the engine's deploy-time settings.
type Config struct {
	// Defaults seed the process state the first time the engine starts.
	Defaults domain.Params
	// TreasuryAccount receives ClaimTreasury payouts. When empty the admin
	// who calls ClaimTreasury is paid.
	TreasuryAccount string
	// LockKey and LockTTL configure the optional cross-process lock.
	LockKey string
	LockTTL time.Duration
}

// Engine is the settlement engine.
type Engine struct {
	cfg     Config
	ledger  domain.Ledger
	gateway *oracle.Gateway
	vault   domain.ValueLedger
	authz   domain.Authorizer
	events  domain.EventPublisher
	locks   domain.LockManager
	clock   func() time.Time
	guard   *guard
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.clock = now }
}

// WithGuardWait bounds how long a call queues behind another mutation
// before failing with domain.ErrGuardTimeout.
func WithGuardWait(d time.Duration) Option {
	return func(e *Engine) { e.guard = newGuard(d) }
}

// WithLockManager serializes units across processes sharing one ledger.
func WithLockManager(lm domain.LockManager) Option {
	return func(e *Engine) { e.locks = lm }
}

// WithPublisher sets the post-commit event sink.
func WithPublisher(p domain.EventPublisher) Option {
	return func(e *Engine) { e.events = p }
}

// New creates an Engine.
func New(
	cfg Config,
	ledger domain.Ledger,
	gateway *oracle.Gateway,
	vault domain.ValueLedger,
	authz domain.Authorizer,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if cfg.LockKey == "" {
		cfg.LockKey = "updown:engine"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	e := &Engine{
		cfg:     cfg,
		ledger:  ledger,
		gateway: gateway,
		vault:   vault,
		authz:   authz,
		clock:   time.Now,
		guard:   newGuard(DefaultGuardWait),
		logger:  logger.With(slog.String("component", "engine")),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Init persists the default process state unless one already exists.
func (e *Engine) Init(ctx context.Context) error {
	if _, err := e.ledger.GetState(ctx); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("engine: init: %w", err)
	}
	if err := e.cfg.Defaults.Validate(); err != nil {
		return fmt.Errorf("engine: init: %w", err)
	}
	err := e.ledger.Atomic(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		if _, err := tx.State(ctx); err == nil {
			return nil
		}
		return tx.SaveState(ctx, domain.State{Params: e.cfg.Defaults})
	})
	if err != nil {
		return fmt.Errorf("engine: init: %w", err)
	}
	e.logger.InfoContext(ctx, "engine state initialised",
		slog.Duration("interval", e.cfg.Defaults.Interval),
		slog.Duration("buffer", e.cfg.Defaults.Buffer),
		slog.Int64("min_bet", e.cfg.Defaults.MinBetAmount),
		slog.Int64("fee_bps", e.cfg.Defaults.TreasuryFeeBps),
	)
	return nil
}

// Now returns the engine clock truncated to whole seconds.
func (e *Engine) Now() time.Time {
	return e.clock().UTC().Truncate(time.Second)
}

// unit is the working set of one atomic operation.
type unit struct {
	tx     domain.LedgerTx
	st     domain.State
	now    time.Time
	events []domain.Event
}

func (u *unit) emit(ev domain.Event) {
	u.events = append(u.events, ev)
}

// mutate runs fn under the re-entry guard inside one ledger unit, saves the
// process state with it and publishes the collected events after commit.
func (e *Engine) mutate(ctx context.Context, op string, fn func(ctx context.Context, u *unit) error) error {
	ctx, release, err := e.guard.enter(ctx)
	if err != nil {
		return fmt.Errorf("engine: %s: %w", op, err)
	}
	defer release()

	if e.locks != nil {
		unlock, err := e.acquire(ctx)
		if err != nil {
			return fmt.Errorf("engine: %s: %w", op, err)
		}
		defer unlock()
	}

	now := e.Now()
	var events []domain.Event
	err = e.ledger.Atomic(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		u := &unit{tx: tx, st: st, now: now}
		if err := fn(ctx, u); err != nil {
			return err
		}
		if err := tx.SaveState(ctx, u.st); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		events = u.events
		return nil
	})
	if err != nil {
		e.logger.DebugContext(ctx, "operation rejected", slog.String("op", op), slog.String("error", err.Error()))
		return fmt.Errorf("engine: %s: %w", op, err)
	}

	for i := range events {
		events[i].ID = uuid.NewString()
		events[i].At = now
	}
	e.logger.InfoContext(ctx, "operation committed", slog.String("op", op), slog.Int("events", len(events)))
	if e.events != nil && len(events) > 0 {
		if err := e.events.Publish(ctx, events); err != nil {
			e.logger.WarnContext(ctx, "publish events failed", slog.String("op", op), slog.String("error", err.Error()))
		}
	}
	return nil
}

const lockPollInterval = 50 * time.Millisecond

// acquire polls the lock manager until the lock is free or ctx ends.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	for {
		unlock, err := e.locks.Acquire(ctx, e.cfg.LockKey, e.cfg.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock: %w", ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

func (e *Engine) require(ctx context.Context, caller string, role domain.Role) error {
	if caller == "" {
		return domain.ErrMissingCaller
	}
	return e.authz.Authorize(ctx, caller, role)
}

func (e *Engine) requireAdminOrOperator(ctx context.Context, caller string) error {
	if caller == "" {
		return domain.ErrMissingCaller
	}
	if e.authz.Authorize(ctx, caller, domain.RoleAdmin) == nil {
		return nil
	}
	if e.authz.Authorize(ctx, caller, domain.RoleOperator) == nil {
		return nil
	}
	return domain.ErrNotAdminOrOperator
}
