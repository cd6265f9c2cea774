package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/store/memory"
)

// A second bet in the same epoch is rejected and leaves the first intact.
func TestScenarioDuplicateBet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.must(h.eng.GenesisStartRound(ctx, operator))
	h.at(1)
	h.must(h.eng.BetBull(ctx, "alice", 1, 50))

	err := h.eng.BetBear(ctx, "alice", 1, 30)
	if !isErr(err, domain.ErrDuplicateBet) || !isErr(err, domain.ErrValidation) {
		t.Fatalf("expected ErrDuplicateBet, got %v", err)
	}

	r := h.round(1)
	if r.TotalAmount != 50 || r.BullAmount != 50 || r.BearAmount != 0 {
		t.Fatalf("round changed: %+v", r)
	}
	b, err := h.eng.BetInfo(ctx, 1, "alice")
	h.must(err)
	if b.Amount != 50 || b.Position != domain.PositionBull {
		t.Fatalf("bet changed: %+v", b)
	}
	if h.vault.Balance("alice") != 950 {
		t.Fatalf("balance = %d, want 950", h.vault.Balance("alice"))
	}
	if n, _ := h.eng.UserRoundsLength(ctx, "alice"); n != 1 {
		t.Fatalf("index length = %d, want 1", n)
	}
}

func TestBetValidation(t *testing.T) {
	tests := []struct {
		name    string
		offset  int64
		user    string
		epoch   int64
		pos     domain.Position
		amount  int64
		wantErr error
	}{
		{"at start time", 0, "alice", 1, domain.PositionBull, 10, domain.ErrRoundNotBettable},
		{"at lock time", 300, "alice", 1, domain.PositionBull, 10, domain.ErrRoundNotBettable},
		{"wrong epoch", 1, "alice", 2, domain.PositionBull, 10, domain.ErrWrongEpoch},
		{"below minimum", 1, "alice", 1, domain.PositionBear, 9, domain.ErrBetTooSmall},
		{"insufficient funds", 1, "alice", 1, domain.PositionBear, 1001, domain.ErrInsufficientFunds},
		{"bad position", 1, "alice", 1, domain.Position("sideways"), 10, domain.ErrInvalidPosition},
		{"no caller", 1, "", 1, domain.PositionBull, 10, domain.ErrMissingCaller},
		{"minimum accepted", 1, "alice", 1, domain.PositionBull, 10, nil},
		{"last second", 299, "alice", 1, domain.PositionBear, 1000, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			h.must(h.eng.GenesisStartRound(ctx, operator))
			h.at(tt.offset)

			err := h.eng.Bet(ctx, tt.user, tt.epoch, tt.pos, tt.amount)
			if tt.wantErr == nil {
				h.must(err)
				if r := h.round(1); r.TotalAmount != tt.amount {
					t.Fatalf("total = %d, want %d", r.TotalAmount, tt.amount)
				}
				return
			}
			if !isErr(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if r := h.round(1); r.TotalAmount != 0 {
				t.Fatalf("failed bet changed round: %+v", r)
			}
			if h.vault.House() != 0 {
				t.Fatalf("failed bet moved funds: house=%d", h.vault.House())
			}
		})
	}
}

func TestBetWhilePaused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.must(h.eng.GenesisStartRound(ctx, operator))
	h.must(h.eng.Pause(ctx, admin))
	h.at(1)
	if err := h.eng.BetBull(ctx, "alice", 1, 10); !isErr(err, domain.ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
}

func TestConcurrentBetsKeepTotals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.must(h.eng.GenesisStartRound(ctx, operator))
	h.at(1)

	const n = 40
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		user := fmt.Sprintf("user-%02d", i)
		h.vault.Deposit(user, 100)
		wg.Add(1)
		go func(i int, user string) {
			defer wg.Done()
			pos := domain.PositionBull
			if i%3 == 0 {
				pos = domain.PositionBear
			}
			errs <- h.eng.Bet(ctx, user, 1, pos, int64(10+i))
		}(i, user)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		h.must(err)
	}

	r := h.round(1)
	bets, err := h.ledger.ListBets(ctx, 1)
	h.must(err)
	var sum, bull, bear int64
	for _, b := range bets {
		sum += b.Amount
		if b.Position == domain.PositionBull {
			bull += b.Amount
		} else {
			bear += b.Amount
		}
	}
	if len(bets) != n || r.TotalAmount != sum || r.BullAmount != bull || r.BearAmount != bear {
		t.Fatalf("totals drifted: round=%+v bets=%d sum=%d bull=%d bear=%d", r, len(bets), sum, bull, bear)
	}
	if r.TotalAmount != r.BullAmount+r.BearAmount {
		t.Fatalf("total %d != bull %d + bear %d", r.TotalAmount, r.BullAmount, r.BearAmount)
	}
	if h.vault.House() != sum {
		t.Fatalf("house = %d, want %d", h.vault.House(), sum)
	}
}

// reentrantVault calls back into the engine from inside a transfer.
type reentrantVault struct {
	*memory.Vault
	eng *Engine
}

func (v *reentrantVault) TransferIn(ctx context.Context, from string, amount int64) error {
	if _, err := v.eng.Claim(ctx, from, []int64{1}); err != nil {
		return err
	}
	return v.Vault.TransferIn(ctx, from, amount)
}

func TestReentrantCallRejected(t *testing.T) {
	rv := &reentrantVault{}
	h := newHarnessWithVault(t, func(v *memory.Vault) domain.ValueLedger {
		rv.Vault = v
		return rv
	})
	rv.eng = h.eng
	ctx := context.Background()
	h.must(h.eng.GenesisStartRound(ctx, operator))
	h.at(1)

	err := h.eng.BetBull(ctx, "alice", 1, 10)
	if !isErr(err, domain.ErrGuardHeld) || !isErr(err, domain.ErrReentrancy) {
		t.Fatalf("expected reentrancy error, got %v", err)
	}
	if r := h.round(1); r.TotalAmount != 0 {
		t.Fatalf("round mutated by rejected call: %+v", r)
	}
	if _, err := h.eng.BetInfo(ctx, 1, "alice"); !isErr(err, domain.ErrNotFound) {
		t.Fatalf("bet recorded by rejected call: %v", err)
	}
}

// detachedVault calls back into the engine on a fresh context.
type detachedVault struct {
	*memory.Vault
	eng *Engine
}

func (v *detachedVault) TransferIn(ctx context.Context, from string, amount int64) error {
	if err := v.eng.Pause(context.Background(), operator); err != nil {
		return err
	}
	return v.Vault.TransferIn(ctx, from, amount)
}

func TestDetachedReentryTimesOut(t *testing.T) {
	dv := &detachedVault{}
	h := newHarnessWithVault(t, func(v *memory.Vault) domain.ValueLedger {
		dv.Vault = v
		return dv
	}, WithGuardWait(20*time.Millisecond))
	dv.eng = h.eng
	ctx := context.Background()
	h.must(h.eng.GenesisStartRound(ctx, operator))
	h.at(1)

	done := make(chan error, 1)
	go func() { done <- h.eng.BetBull(ctx, "alice", 1, 10) }()
	select {
	case err := <-done:
		if !isErr(err, domain.ErrGuardTimeout) || !isErr(err, domain.ErrReentrancy) {
			t.Fatalf("expected ErrGuardTimeout, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("detached re-entry deadlocked")
	}
	if r := h.round(1); r.TotalAmount != 0 {
		t.Fatalf("round mutated by rejected call: %+v", r)
	}
	if st, _ := h.eng.State(ctx); st.Paused {
		t.Fatal("callback pause committed")
	}
}
