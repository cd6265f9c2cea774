// Package memory implements the domain ledger and value ledger in process
// memory. Writes made inside Atomic are staged and applied only on success.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/updown/internal/domain"
)

type betKey struct {
	epoch int64
	user  string
}

// Ledger implements domain.Ledger.
type Ledger struct {
	mu     sync.RWMutex
	state  *domain.State
	rounds map[int64]domain.Round
	bets   map[betKey]domain.BetInfo
	index  map[string][]int64
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		rounds: make(map[int64]domain.Round),
		bets:   make(map[betKey]domain.BetInfo),
		index:  make(map[string][]int64),
	}
}

// Atomic runs fn against a staging view and applies the staged writes when
// fn returns nil. Units are serialized.
func (l *Ledger) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := &ledgerTx{
		base:   l,
		rounds: make(map[int64]domain.Round),
		bets:   make(map[betKey]domain.BetInfo),
		index:  make(map[string][]int64),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if tx.state != nil {
		st := *tx.state
		l.state = &st
	}
	for k, r := range tx.rounds {
		l.rounds[k] = r
	}
	for k, b := range tx.bets {
		l.bets[k] = b
	}
	for user, epochs := range tx.index {
		l.index[user] = append(l.index[user], epochs...)
	}
	return nil
}

// GetState returns the committed process state.
func (l *Ledger) GetState(ctx context.Context) (domain.State, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state == nil {
		return domain.State{}, domain.ErrNotFound
	}
	return *l.state, nil
}

// GetRound returns a committed round.
func (l *Ledger) GetRound(ctx context.Context, epoch int64) (domain.Round, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rounds[epoch]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

// GetBet returns a committed bet.
func (l *Ledger) GetBet(ctx context.Context, epoch int64, user string) (domain.BetInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.bets[betKey{epoch, user}]
	if !ok {
		return domain.BetInfo{}, domain.ErrNotFound
	}
	return b, nil
}

// UserRounds pages through a user's index.
func (l *Ledger) UserRounds(ctx context.Context, user string, cursor, size int) ([]domain.UserRound, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	epochs := l.index[user]
	if cursor < 0 || cursor >= len(epochs) || size <= 0 {
		return nil, nil
	}
	end := cursor + size
	if end > len(epochs) {
		end = len(epochs)
	}
	out := make([]domain.UserRound, 0, end-cursor)
	for _, e := range epochs[cursor:end] {
		out = append(out, domain.UserRound{Epoch: e, Bet: l.bets[betKey{e, user}]})
	}
	return out, nil
}

// UserRoundsLength returns the size of a user's index.
func (l *Ledger) UserRoundsLength(ctx context.Context, user string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.index[user]), nil
}

// ListRounds returns committed rounds in [from, to].
func (l *Ledger) ListRounds(ctx context.Context, from, to int64) ([]domain.Round, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Round
	for e, r := range l.rounds {
		if e >= from && e <= to {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Epoch < out[j].Epoch })
	return out, nil
}

// ListBets returns the committed bets of one epoch ordered by user.
func (l *Ledger) ListBets(ctx context.Context, epoch int64) ([]domain.BetInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.BetInfo
	for k, b := range l.bets {
		if k.epoch == epoch {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

// ledgerTx overlays staged writes on the committed maps. It is only used
// while Atomic holds the write lock.
type ledgerTx struct {
	base   *Ledger
	state  *domain.State
	rounds map[int64]domain.Round
	bets   map[betKey]domain.BetInfo
	index  map[string][]int64
}

func (t *ledgerTx) State(ctx context.Context) (domain.State, error) {
	if t.state != nil {
		return *t.state, nil
	}
	if t.base.state == nil {
		return domain.State{}, domain.ErrNotFound
	}
	return *t.base.state, nil
}

func (t *ledgerTx) SaveState(ctx context.Context, st domain.State) error {
	t.state = &st
	return nil
}

func (t *ledgerTx) Round(ctx context.Context, epoch int64) (domain.Round, error) {
	if r, ok := t.rounds[epoch]; ok {
		return r, nil
	}
	if r, ok := t.base.rounds[epoch]; ok {
		return r, nil
	}
	return domain.Round{}, domain.ErrNotFound
}

func (t *ledgerTx) CreateRound(ctx context.Context, r domain.Round) error {
	if _, err := t.Round(ctx, r.Epoch); err == nil {
		return fmt.Errorf("memory: create round %d: %w", r.Epoch, domain.ErrAlreadyExists)
	}
	t.rounds[r.Epoch] = r
	return nil
}

func (t *ledgerTx) UpdateRound(ctx context.Context, r domain.Round) error {
	if _, err := t.Round(ctx, r.Epoch); err != nil {
		return fmt.Errorf("memory: update round %d: %w", r.Epoch, err)
	}
	t.rounds[r.Epoch] = r
	return nil
}

func (t *ledgerTx) Bet(ctx context.Context, epoch int64, user string) (domain.BetInfo, error) {
	k := betKey{epoch, user}
	if b, ok := t.bets[k]; ok {
		return b, nil
	}
	if b, ok := t.base.bets[k]; ok {
		return b, nil
	}
	return domain.BetInfo{}, domain.ErrNotFound
}

func (t *ledgerTx) RecordBet(ctx context.Context, b domain.BetInfo) error {
	if _, err := t.Bet(ctx, b.Epoch, b.User); err == nil {
		return fmt.Errorf("memory: record bet %d/%s: %w", b.Epoch, b.User, domain.ErrDuplicateBet)
	}
	t.bets[betKey{b.Epoch, b.User}] = b
	t.index[b.User] = append(t.index[b.User], b.Epoch)
	return nil
}

func (t *ledgerTx) MarkClaimed(ctx context.Context, epoch int64, user string) error {
	b, err := t.Bet(ctx, epoch, user)
	if err != nil {
		return fmt.Errorf("memory: mark claimed %d/%s: %w", epoch, user, err)
	}
	b.Claimed = true
	t.bets[betKey{epoch, user}] = b
	return nil
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
