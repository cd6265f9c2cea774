package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updown/internal/domain"
)

// DefaultHouseAccount is the balances row that holds staked value.
const DefaultHouseAccount = "__house__"

// BalanceStore implements domain.ValueLedger over the balances table. Calls
// made with a ctx from LedgerStore.Atomic run inside that unit's
// transaction.
type BalanceStore struct {
	pool  *pgxpool.Pool
	house string
}

// NewBalanceStore creates a BalanceStore. An empty house uses
// DefaultHouseAccount.
func NewBalanceStore(pool *pgxpool.Pool, house string) *BalanceStore {
	if house == "" {
		house = DefaultHouseAccount
	}
	return &BalanceStore{pool: pool, house: house}
}

// TransferIn moves amount from a user to the house.
func (s *BalanceStore) TransferIn(ctx context.Context, from string, amount int64) error {
	if err := s.move(ctx, from, s.house, amount); err != nil {
		return fmt.Errorf("postgres: transfer in from %s: %w", from, err)
	}
	return nil
}

// TransferOut moves amount from the house to a user.
func (s *BalanceStore) TransferOut(ctx context.Context, to string, amount int64) error {
	if err := s.move(ctx, s.house, to, amount); err != nil {
		return fmt.Errorf("postgres: transfer out to %s: %w", to, err)
	}
	return nil
}

// Deposit credits account, creating its row if needed.
func (s *BalanceStore) Deposit(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("postgres: deposit %d: %w", amount, domain.ErrInvalidParam)
	}
	if err := credit(ctx, conn(ctx, s.pool), account, amount); err != nil {
		return fmt.Errorf("postgres: deposit to %s: %w", account, err)
	}
	return nil
}

// Balance returns account's balance; unknown accounts hold zero.
func (s *BalanceStore) Balance(ctx context.Context, account string) (int64, error) {
	var amount int64
	err := conn(ctx, s.pool).QueryRow(ctx, `SELECT amount FROM balances WHERE account = $1`, account).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", account, err)
	}
	return amount, nil
}

func (s *BalanceStore) move(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	q := conn(ctx, s.pool)
	if _, ok := q.(pgx.Tx); ok {
		return moveWith(ctx, q, from, to, amount)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return moveWith(ctx, tx, from, to, amount)
	})
}

func moveWith(ctx context.Context, q querier, from, to string, amount int64) error {
	tag, err := q.Exec(ctx, `
		UPDATE balances SET amount = amount - $2, updated_at = NOW()
		WHERE account = $1 AND amount >= $2`, from, amount)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBalanceInsufficient
	}
	return credit(ctx, q, to, amount)
}

func credit(ctx context.Context, q querier, account string, amount int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO balances (account, amount, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET
			amount = balances.amount + EXCLUDED.amount,
			updated_at = NOW()`, account, amount)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ValueLedger = (*BalanceStore)(nil)
