package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/updown/internal/domain"
)

// ManualFeed is a PriceFeed whose snapshot is set by hand. It backs local
// runs and tests.
type ManualFeed struct {
	mu   sync.Mutex
	snap domain.Snapshot
	err  error
	set  bool
}

// NewManualFeed returns a ManualFeed with no snapshot.
func NewManualFeed() *ManualFeed { return &ManualFeed{} }

// Set replaces the current snapshot and clears any injected error.
func (f *ManualFeed) Set(snap domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.err = nil
	f.set = true
}

// Fail makes Latest return err until the next Set.
func (f *ManualFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Latest implements domain.PriceFeed.
func (f *ManualFeed) Latest(ctx context.Context) (domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Snapshot{}, f.err
	}
	if !f.set {
		return domain.Snapshot{}, fmt.Errorf("oracle: manual feed has no snapshot: %w", domain.ErrNotFound)
	}
	return f.snap, nil
}

// StaticResolver maps fixed addresses to feeds.
type StaticResolver map[string]domain.PriceFeed

// Resolve implements domain.FeedResolver.
func (r StaticResolver) Resolve(ctx context.Context, address string) (domain.PriceFeed, error) {
	f, ok := r[address]
	if !ok {
		return nil, fmt.Errorf("oracle: no feed registered for %q: %w", address, domain.ErrInvalidAddress)
	}
	return f, nil
}

// Compile-time interface checks.
var (
	_ domain.PriceFeed    = (*ManualFeed)(nil)
	_ domain.FeedResolver = StaticResolver(nil)
)
