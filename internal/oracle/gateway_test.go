package oracle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

const feedAddr = "manual:btc-usd"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(strict bool) (*Gateway, *ManualFeed) {
	feed := NewManualFeed()
	g := NewGateway(StaticResolver{feedAddr: feed}, testLogger(), WithStrictStaleness(strict))
	return g, feed
}

func testState(latest uint64) domain.State {
	return domain.State{
		OracleLatestRoundID: domain.NewRoundID(latest),
		Params: domain.Params{
			OracleAddress:         feedAddr,
			OracleUpdateAllowance: 300 * time.Second,
		},
	}
}

func TestFetchPrice(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	tests := []struct {
		name    string
		strict  bool
		latest  uint64
		snap    domain.Snapshot
		wantErr error
	}{
		{
			name:   "fresh snapshot",
			latest: 1,
			snap:   domain.Snapshot{RoundID: domain.NewRoundID(2), Price: 100, ReportedAt: now.Add(-10 * time.Second)},
		},
		{
			name:    "reported beyond now plus allowance",
			latest:  1,
			snap:    domain.Snapshot{RoundID: domain.NewRoundID(2), Price: 100, ReportedAt: now.Add(301 * time.Second)},
			wantErr: domain.ErrOracleStale,
		},
		{
			name:   "old snapshot accepted by literal check",
			latest: 1,
			snap:   domain.Snapshot{RoundID: domain.NewRoundID(2), Price: 100, ReportedAt: now.Add(-time.Hour)},
		},
		{
			name:    "old snapshot rejected in strict mode",
			strict:  true,
			latest:  1,
			snap:    domain.Snapshot{RoundID: domain.NewRoundID(2), Price: 100, ReportedAt: now.Add(-time.Hour)},
			wantErr: domain.ErrOracleStale,
		},
		{
			name:    "same round id",
			latest:  5,
			snap:    domain.Snapshot{RoundID: domain.NewRoundID(5), Price: 100, ReportedAt: now},
			wantErr: domain.ErrOracleNonMonotonic,
		},
		{
			name:    "older round id",
			latest:  5,
			snap:    domain.Snapshot{RoundID: domain.NewRoundID(4), Price: 100, ReportedAt: now},
			wantErr: domain.ErrOracleNonMonotonic,
		},
		{
			name:   "phase bump beats large low part",
			latest: ^uint64(0),
			snap:   domain.Snapshot{RoundID: domain.RoundID{Hi: 1, Lo: 1}, Price: 100, ReportedAt: now},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, feed := newTestGateway(tt.strict)
			feed.Set(tt.snap)
			st := testState(tt.latest)

			snap, err := g.FetchPrice(context.Background(), &st, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !errors.Is(err, domain.ErrOracle) {
					t.Errorf("expected oracle category, got %v", err)
				}
				if st.OracleLatestRoundID != domain.NewRoundID(tt.latest) {
					t.Errorf("high-water mark moved on failure: %s", st.OracleLatestRoundID)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if snap.Price != tt.snap.Price {
				t.Errorf("price = %d, want %d", snap.Price, tt.snap.Price)
			}
			if st.OracleLatestRoundID != tt.snap.RoundID {
				t.Errorf("high-water mark = %s, want %s", st.OracleLatestRoundID, tt.snap.RoundID)
			}
		})
	}
}

func TestFetchPriceFeedFailure(t *testing.T) {
	g, feed := newTestGateway(false)
	feed.Fail(errors.New("rpc down"))
	st := testState(1)

	_, err := g.FetchPrice(context.Background(), &st, time.Now())
	if !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable, got %v", err)
	}
}

func TestFetchPriceUnknownAddress(t *testing.T) {
	g, _ := newTestGateway(false)
	st := testState(1)
	st.Params.OracleAddress = "manual:eth-usd"

	if _, err := g.FetchPrice(context.Background(), &st, time.Now()); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestProbe(t *testing.T) {
	g, feed := newTestGateway(false)

	if err := g.Probe(context.Background(), feedAddr); err == nil {
		t.Fatal("expected probe of empty feed to fail")
	}
	feed.Set(domain.Snapshot{RoundID: domain.NewRoundID(1), Price: 1, ReportedAt: time.Now()})
	if err := g.Probe(context.Background(), feedAddr); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if err := g.Probe(context.Background(), ""); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress for empty address, got %v", err)
	}
}
