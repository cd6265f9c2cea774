package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// FeedScheme prefixes oracle addresses served from Redis, e.g.
// "redis:btc-usd".
const FeedScheme = "redis:"

// PriceFeed implements domain.PriceFeed over a Redis hash written by an
// external price publisher. The hash at "oracle:{name}" holds the fields
// round_id (base 10), price and updated_at (unix seconds).
type PriceFeed struct {
	c    *Client
	name string
}

// NewPriceFeed binds a feed to name.
func NewPriceFeed(c *Client, name string) *PriceFeed {
	return &PriceFeed{c: c, name: name}
}

// Latest implements domain.PriceFeed.
func (f *PriceFeed) Latest(ctx context.Context) (domain.Snapshot, error) {
	vals, err := f.c.rdb.HGetAll(ctx, f.c.Key("oracle", f.name)).Result()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: feed %s: %w", f.name, err)
	}
	if len(vals) == 0 {
		return domain.Snapshot{}, fmt.Errorf("redis: feed %s: %w", f.name, domain.ErrNotFound)
	}

	id, err := domain.ParseRoundID(vals["round_id"])
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: feed %s round_id: %w", f.name, err)
	}
	price, err := strconv.ParseInt(vals["price"], 10, 64)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: feed %s price: %w", f.name, err)
	}
	updated, err := strconv.ParseInt(vals["updated_at"], 10, 64)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("redis: feed %s updated_at: %w", f.name, err)
	}
	return domain.Snapshot{RoundID: id, Price: price, ReportedAt: time.Unix(updated, 0).UTC()}, nil
}

// Publish writes snap as the feed's latest reading.
func (f *PriceFeed) Publish(ctx context.Context, snap domain.Snapshot) error {
	fields := map[string]any{
		"round_id":   snap.RoundID.String(),
		"price":      strconv.FormatInt(snap.Price, 10),
		"updated_at": strconv.FormatInt(snap.ReportedAt.Unix(), 10),
	}
	if err := f.c.rdb.HSet(ctx, f.c.Key("oracle", f.name), fields).Err(); err != nil {
		return fmt.Errorf("redis: publish feed %s: %w", f.name, err)
	}
	return nil
}

// FeedResolver resolves "redis:{name}" addresses.
type FeedResolver struct {
	c *Client
}

// NewFeedResolver creates a FeedResolver.
func NewFeedResolver(c *Client) *FeedResolver {
	return &FeedResolver{c: c}
}

// Resolve implements domain.FeedResolver.
func (r *FeedResolver) Resolve(ctx context.Context, address string) (domain.PriceFeed, error) {
	name, ok := strings.CutPrefix(address, FeedScheme)
	if !ok || name == "" {
		return nil, fmt.Errorf("redis: feed address %q: %w", address, domain.ErrInvalidAddress)
	}
	return NewPriceFeed(r.c, name), nil
}

// Compile-time interface checks.
var (
	_ domain.PriceFeed    = (*PriceFeed)(nil)
	_ domain.FeedResolver = (*FeedResolver)(nil)
)
