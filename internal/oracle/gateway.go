// Package oracle validates price snapshots before the scheduler consumes
// them. The gateway owns the freshness and monotonicity checks; feeds only
// report what the upstream source says.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Gateway fetches snapshots from the feed configured in the engine state and
// advances the state's oracle high-water mark on success.
type Gateway struct {
	resolver domain.FeedResolver
	strict   bool
	logger   *slog.Logger

	mu    sync.Mutex
	feeds map[string]domain.PriceFeed
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithStrictStaleness rejects snapshots older than the update allowance
// instead of only rejecting snapshots reported too far in the future.
func WithStrictStaleness(strict bool) Option {
	return func(g *Gateway) { g.strict = strict }
}

// NewGateway creates a Gateway resolving feeds through resolver.
func NewGateway(resolver domain.FeedResolver, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		resolver: resolver,
		logger:   logger,
		feeds:    make(map[string]domain.PriceFeed),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// FetchPrice reads the latest snapshot and validates it against st. On
// success st.OracleLatestRoundID is set to the snapshot's round id; the
// caller persists st in the same unit as the round it locks or ends.
func (g *Gateway) FetchPrice(ctx context.Context, st *domain.State, now time.Time) (domain.Snapshot, error) {
	feed, err := g.feed(ctx, st.Params.OracleAddress)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap, err := feed.Latest(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("oracle: latest %s: %w: %w", st.Params.OracleAddress, domain.ErrOracleUnavailable, err)
	}

	allowance := st.Params.OracleUpdateAllowance
	if snap.ReportedAt.After(now.Add(allowance)) {
		return domain.Snapshot{}, fmt.Errorf("oracle: reported at %d, now %d: %w",
			snap.ReportedAt.Unix(), now.Unix(), domain.ErrOracleStale)
	}
	if g.strict && now.Sub(snap.ReportedAt) > allowance {
		return domain.Snapshot{}, fmt.Errorf("oracle: snapshot age %s exceeds %s: %w",
			now.Sub(snap.ReportedAt), allowance, domain.ErrOracleStale)
	}
	if snap.RoundID.Cmp(st.OracleLatestRoundID) <= 0 {
		return domain.Snapshot{}, fmt.Errorf("oracle: round %s <= latest %s: %w",
			snap.RoundID, st.OracleLatestRoundID, domain.ErrOracleNonMonotonic)
	}

	st.OracleLatestRoundID = snap.RoundID
	g.logger.DebugContext(ctx, "oracle snapshot accepted",
		slog.String("round_id", snap.RoundID.String()),
		slog.Int64("price", snap.Price),
		slog.Int64("reported_at", snap.ReportedAt.Unix()),
	)
	return snap, nil
}

// Probe checks that address resolves to a feed that answers Latest. It is
// the sanity call made before an oracle swap is accepted.
func (g *Gateway) Probe(ctx context.Context, address string) error {
	feed, err := g.feed(ctx, address)
	if err != nil {
		return err
	}
	if _, err := feed.Latest(ctx); err != nil {
		return fmt.Errorf("oracle: probe %s: %w: %w", address, domain.ErrOracleUnavailable, err)
	}
	return nil
}

func (g *Gateway) feed(ctx context.Context, address string) (domain.PriceFeed, error) {
	if address == "" {
		return nil, fmt.Errorf("oracle: empty feed address: %w", domain.ErrInvalidAddress)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if f, ok := g.feeds[address]; ok {
		return f, nil
	}
	f, err := g.resolver.Resolve(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("oracle: resolve %s: %w", address, err)
	}
	g.feeds[address] = f
	return f, nil
}
