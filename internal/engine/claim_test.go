package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/alanyoungcy/updown/internal/domain"
)

func isErr(err, target error) bool { return errors.Is(err, target) }

// Round e: lock 100, close 120, bull 300, bear 200, fee 2%.
func TestScenarioBullWinPayout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.genesis(func() {
		h.must(h.eng.BetBull(ctx, "alice", 1, 150))
		h.must(h.eng.BetBull(ctx, "bob", 1, 150))
		h.must(h.eng.BetBear(ctx, "carol", 1, 200))
	}, 100)
	h.at(600)
	h.price(feedA, 120)
	h.must(h.eng.ExecuteRound(ctx, operator))

	r := h.round(1)
	if r.TotalAmount != 500 || r.BullAmount != 300 || r.BearAmount != 200 {
		t.Fatalf("unexpected totals: %+v", r)
	}
	if r.RewardBaseCalAmount != 300 || r.RewardAmount != 490 {
		t.Fatalf("unexpected settlement: base=%d reward=%d", r.RewardBaseCalAmount, r.RewardAmount)
	}
	if h.state().TreasuryAmount != 10 {
		t.Fatalf("treasury = %d, want 10", h.state().TreasuryAmount)
	}

	if _, err := h.eng.Claim(ctx, "alice", []int64{1}); !isErr(err, domain.ErrRoundNotClosed) {
		t.Fatalf("claim at close time: expected ErrRoundNotClosed, got %v", err)
	}

	h.at(601)
	if ok, err := h.eng.Claimable(ctx, 1, "carol"); err != nil || ok {
		t.Fatalf("carol claimable = %v, %v", ok, err)
	}
	paid, err := h.eng.Claim(ctx, "alice", []int64{1})
	h.must(err)
	if paid != 245 {
		t.Fatalf("alice paid %d, want 245", paid)
	}
	if got := h.vault.Balance("alice"); got != 1000-150+245 {
		t.Fatalf("alice balance = %d", got)
	}
	paid, err = h.eng.Claim(ctx, "bob", []int64{1})
	h.must(err)
	if paid != 245 {
		t.Fatalf("bob paid %d, want 245", paid)
	}
	if h.vault.House() != 10 {
		t.Fatalf("house = %d, want the treasury cut", h.vault.House())
	}
	if _, err := h.eng.Claim(ctx, "carol", []int64{1}); !isErr(err, domain.ErrNotEligibleClaim) {
		t.Fatalf("carol: expected ErrNotEligibleClaim, got %v", err)
	}
}

// Round f: lock == close.
func TestScenarioTie(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.genesis(func() {
		h.must(h.eng.BetBull(ctx, "alice", 1, 50))
		h.must(h.eng.BetBear(ctx, "bob", 1, 70))
	}, 100)
	h.at(600)
	h.price(feedA, 100)
	h.must(h.eng.ExecuteRound(ctx, operator))

	r := h.round(1)
	if r.RewardAmount != 0 || r.RewardBaseCalAmount != 0 || !r.RewardsCalculated {
		t.Fatalf("unexpected tie settlement: %+v", r)
	}
	if h.state().TreasuryAmount != 120 {
		t.Fatalf("treasury = %d, want whole pool", h.state().TreasuryAmount)
	}

	h.at(700)
	for _, u := range []string{"alice", "bob", "carol"} {
		ok, err := h.eng.Claimable(ctx, 1, u)
		h.must(err)
		if ok {
			t.Errorf("%s claimable in a tie", u)
		}
		ok, err = h.eng.Refundable(ctx, 1, u)
		h.must(err)
		if ok {
			t.Errorf("%s refundable after oracle called", u)
		}
	}
	if _, err := h.eng.Claim(ctx, "alice", []int64{1}); !isErr(err, domain.ErrNotEligibleClaim) {
		t.Fatalf("expected ErrNotEligibleClaim, got %v", err)
	}
}

// Round g: paused before it was ended.
func TestScenarioRefundAfterPause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.genesis(func() {
		h.must(h.eng.BetBull(ctx, "alice", 1, 40))
		h.must(h.eng.BetBear(ctx, "bob", 1, 60))
	}, 100)
	h.at(301)
	h.must(h.eng.BetBull(ctx, "carol", 2, 70))
	h.at(400)
	h.must(h.eng.Pause(ctx, operator))

	// round 1 closes at 600, buffer 30
	h.at(630)
	if ok, _ := h.eng.Refundable(ctx, 1, "alice"); ok {
		t.Fatal("refundable before close+buffer")
	}
	if _, err := h.eng.Claim(ctx, "alice", []int64{1}); !isErr(err, domain.ErrNotEligibleRefund) {
		t.Fatalf("expected ErrNotEligibleRefund, got %v", err)
	}

	h.at(631)
	for user, stake := range map[string]int64{"alice": 40, "bob": 60} {
		ok, err := h.eng.Refundable(ctx, 1, user)
		h.must(err)
		if !ok {
			t.Fatalf("%s not refundable", user)
		}
		paid, err := h.eng.Claim(ctx, user, []int64{1})
		h.must(err)
		if paid != stake || h.vault.Balance(user) != 1000 {
			t.Fatalf("%s paid %d balance %d", user, paid, h.vault.Balance(user))
		}
	}
	if ok, _ := h.eng.Refundable(ctx, 1, "dave"); ok {
		t.Fatal("user without a bet is refundable")
	}

	// round 2 was never locked; it closes at 900
	h.at(931)
	paid, err := h.eng.Claim(ctx, "carol", []int64{2})
	h.must(err)
	if paid != 70 {
		t.Fatalf("carol paid %d, want 70", paid)
	}
	if h.state().TreasuryAmount != 0 {
		t.Fatalf("treasury = %d, want 0", h.state().TreasuryAmount)
	}
	if h.vault.House() != 0 {
		t.Fatalf("house = %d, want 0", h.vault.House())
	}
}

func TestClaimBatchAllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.genesis(func() {
		h.must(h.eng.BetBull(ctx, "alice", 1, 100))
		h.must(h.eng.BetBear(ctx, "bob", 1, 100))
	}, 100)
	h.at(301)
	h.must(h.eng.BetBull(ctx, "alice", 2, 100))
	h.at(600)
	h.price(feedA, 110)
	h.must(h.eng.ExecuteRound(ctx, operator))
	h.at(601)

	events := h.pub.Len()
	balance := h.vault.Balance("alice")

	tests := []struct {
		name    string
		epochs  []int64
		wantErr error
	}{
		{"second epoch still running", []int64{1, 2}, domain.ErrRoundNotClosed},
		{"duplicate epoch in batch", []int64{1, 1}, domain.ErrNotEligibleClaim},
		{"unknown epoch", []int64{1, 99}, domain.ErrRoundNotStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.eng.Claim(ctx, "alice", tt.epochs); !isErr(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			b, err := h.eng.BetInfo(ctx, 1, "alice")
			h.must(err)
			if b.Claimed {
				t.Fatal("epoch 1 marked claimed by a failed batch")
			}
			if h.vault.Balance("alice") != balance || h.pub.Len() != events {
				t.Fatal("failed batch had side effects")
			}
		})
	}

	paid, err := h.eng.Claim(ctx, "alice", []int64{1})
	h.must(err)
	if paid != 196 {
		t.Fatalf("paid %d, want 196", paid)
	}
	if _, err := h.eng.Claim(ctx, "alice", []int64{1}); !isErr(err, domain.ErrNotEligibleClaim) {
		t.Fatalf("second claim: expected ErrNotEligibleClaim, got %v", err)
	}
}

func TestClaimRequiresCaller(t *testing.T) {
	h := newHarness(t)
	if _, err := h.eng.Claim(context.Background(), "", []int64{1}); !isErr(err, domain.ErrMissingCaller) {
		t.Fatalf("expected ErrMissingCaller, got %v", err)
	}
}
