package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// openTestClient connects to UPDOWN_TEST_POSTGRES_DSN and resets the schema.
func openTestClient(t *testing.T) *Client {
	t.Helper()
	dsn := os.Getenv("UPDOWN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("UPDOWN_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = c.Pool().Exec(ctx, `TRUNCATE user_rounds, bets, rounds, engine_state, balances, audit_log RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return c
}

func seedState(t *testing.T, s *LedgerStore) {
	t.Helper()
	err := s.Atomic(context.Background(), func(ctx context.Context, tx domain.LedgerTx) error {
		return tx.SaveState(ctx, domain.State{Params: domain.Params{
			Interval:              300 * time.Second,
			Buffer:                30 * time.Second,
			MinBetAmount:          10,
			TreasuryFeeBps:        300,
			OracleAddress:         "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
			OracleUpdateAllowance: 300 * time.Second,
		}})
	})
	if err != nil {
		t.Fatalf("seed state: %v", err)
	}
}

func TestLedgerStoreRoundTrip(t *testing.T) {
	c := openTestClient(t)
	s := NewLedgerStore(c.Pool())
	ctx := context.Background()
	seedState(t, s)

	start := time.Unix(1_700_000_000, 0).UTC()
	round := domain.Round{
		Epoch:     1,
		StartTime: start,
		LockTime:  start.Add(300 * time.Second),
		CloseTime: start.Add(600 * time.Second),
	}
	err := s.Atomic(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		st, err := tx.State(ctx)
		if err != nil {
			return err
		}
		st.CurrentEpoch = 1
		st.OracleLatestRoundID = domain.RoundID{Hi: 3, Lo: 42}
		if err := tx.SaveState(ctx, st); err != nil {
			return err
		}
		if err := tx.CreateRound(ctx, round); err != nil {
			return err
		}
		if err := tx.RecordBet(ctx, domain.BetInfo{Epoch: 1, User: "alice", Position: domain.PositionBull, Amount: 50}); err != nil {
			return err
		}
		r, err := tx.Round(ctx, 1)
		if err != nil {
			return err
		}
		r.TotalAmount, r.BullAmount = 50, 50
		return tx.UpdateRound(ctx, r)
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}

	st, err := s.GetState(ctx)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.CurrentEpoch != 1 || st.OracleLatestRoundID != (domain.RoundID{Hi: 3, Lo: 42}) || st.Params.Interval != 300*time.Second {
		t.Fatalf("unexpected state: %+v", st)
	}
	got, err := s.GetRound(ctx, 1)
	if err != nil {
		t.Fatalf("get round: %v", err)
	}
	if !got.StartTime.Equal(start) || got.TotalAmount != 50 || got.Locked() {
		t.Fatalf("unexpected round: %+v", got)
	}
	page, err := s.UserRounds(ctx, "alice", 0, 10)
	if err != nil || len(page) != 1 || page[0].Bet.Amount != 50 {
		t.Fatalf("user rounds = %+v, %v", page, err)
	}
}

func TestLedgerStoreRollback(t *testing.T) {
	c := openTestClient(t)
	s := NewLedgerStore(c.Pool())
	b := NewBalanceStore(c.Pool(), "")
	ctx := context.Background()
	seedState(t, s)
	if err := b.Deposit(ctx, "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		if err := tx.CreateRound(ctx, domain.Round{Epoch: 7, StartTime: time.Unix(1, 0)}); err != nil {
			return err
		}
		if err := b.TransferIn(ctx, "alice", 60); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetRound(ctx, 7); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("round survived rollback: %v", err)
	}
	if bal, _ := b.Balance(ctx, "alice"); bal != 100 {
		t.Fatalf("transfer survived rollback: balance %d", bal)
	}
}

func TestLedgerStoreDuplicateBet(t *testing.T) {
	c := openTestClient(t)
	s := NewLedgerStore(c.Pool())
	ctx := context.Background()
	seedState(t, s)

	err := s.Atomic(ctx, func(ctx context.Context, tx domain.LedgerTx) error {
		if err := tx.CreateRound(ctx, domain.Round{Epoch: 1, StartTime: time.Unix(1, 0)}); err != nil {
			return err
		}
		if err := tx.RecordBet(ctx, domain.BetInfo{Epoch: 1, User: "bob", Position: domain.PositionBear, Amount: 20}); err != nil {
			return err
		}
		return tx.RecordBet(ctx, domain.BetInfo{Epoch: 1, User: "bob", Position: domain.PositionBull, Amount: 30})
	})
	if !errors.Is(err, domain.ErrDuplicateBet) {
		t.Fatalf("expected ErrDuplicateBet, got %v", err)
	}
}

func TestBalanceStoreInsufficient(t *testing.T) {
	c := openTestClient(t)
	b := NewBalanceStore(c.Pool(), "")
	ctx := context.Background()
	if err := b.Deposit(ctx, "carol", 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := b.TransferIn(ctx, "carol", 11); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := b.TransferIn(ctx, "carol", 10); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	if house, _ := b.Balance(ctx, DefaultHouseAccount); house != 10 {
		t.Fatalf("house = %d", house)
	}
}

func TestAuditStoreList(t *testing.T) {
	c := openTestClient(t)
	a := NewAuditStore(c.Pool())
	ctx := context.Background()

	for _, ev := range []string{"engine.start_round", "engine.lock_round", "engine.end_round"} {
		if err := a.Log(ctx, ev, map[string]any{"epoch": 1}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	entries, err := a.List(ctx, domain.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Event != "engine.lock_round" || entries[1].Event != "engine.start_round" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Detail["epoch"] != float64(1) {
		t.Fatalf("detail = %v", entries[0].Detail)
	}

	future := time.Now().Add(time.Hour)
	if entries, err := a.List(ctx, domain.ListOpts{Since: &future}); err != nil || len(entries) != 0 {
		t.Fatalf("since future: %v, %v", entries, err)
	}
}
