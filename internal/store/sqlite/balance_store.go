package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// DefaultHouseAccount is the balances row that holds staked value.
const DefaultHouseAccount = "__house__"

// BalanceStore implements domain.ValueLedger. Inside a LedgerStore unit it
// writes through the unit's transaction.
type BalanceStore struct {
	db    *sql.DB
	house string
}

// NewBalanceStore creates a BalanceStore. An empty house uses
// DefaultHouseAccount.
func NewBalanceStore(db *sql.DB, house string) *BalanceStore {
	if house == "" {
		house = DefaultHouseAccount
	}
	return &BalanceStore{db: db, house: house}
}

// TransferIn moves amount from a user to the house.
func (s *BalanceStore) TransferIn(ctx context.Context, from string, amount int64) error {
	if err := s.move(ctx, from, s.house, amount); err != nil {
		return fmt.Errorf("sqlite: transfer in from %s: %w", from, err)
	}
	return nil
}

// TransferOut moves amount from the house to a user.
func (s *BalanceStore) TransferOut(ctx context.Context, to string, amount int64) error {
	if err := s.move(ctx, s.house, to, amount); err != nil {
		return fmt.Errorf("sqlite: transfer out to %s: %w", to, err)
	}
	return nil
}

// Deposit credits account.
func (s *BalanceStore) Deposit(ctx context.Context, account string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("sqlite: deposit %d: %w", amount, domain.ErrInvalidParam)
	}
	if err := credit(ctx, conn(ctx, s.db), account, amount); err != nil {
		return fmt.Errorf("sqlite: deposit to %s: %w", account, err)
	}
	return nil
}

// Balance returns account's balance; unknown accounts hold zero.
func (s *BalanceStore) Balance(ctx context.Context, account string) (int64, error) {
	var amount int64
	err := conn(ctx, s.db).QueryRowContext(ctx, `SELECT amount FROM balances WHERE account = ?`, account).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: balance %s: %w", account, err)
	}
	return amount, nil
}

func (s *BalanceStore) move(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	if tx, ok := conn(ctx, s.db).(*sql.Tx); ok {
		return moveWith(ctx, tx, from, to, amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := moveWith(ctx, tx, from, to, amount); err != nil {
		return err
	}
	return tx.Commit()
}

func moveWith(ctx context.Context, q querier, from, to string, amount int64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE balances SET amount = amount - ? WHERE account = ? AND amount >= ?`, amount, from, amount)
	if err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrBalanceInsufficient
	}
	return credit(ctx, q, to, amount)
}

func credit(ctx context.Context, q querier, account string, amount int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO balances (account, amount) VALUES (?, ?)
		ON CONFLICT (account) DO UPDATE SET amount = amount + excluded.amount`, account, amount)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	return nil
}

// AuditStore implements domain.AuditStore.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates an AuditStore on db.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log appends an audit entry with detail stored as JSON text.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	_, err = conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(detailJSON), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries, newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`
	var args []any
	if opts.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, opts.Since.UnixMilli())
	}
	if opts.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, opts.Until.UnixMilli())
	}
	query += ` ORDER BY created_at DESC, id DESC`
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detail sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.Event, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Compile-time interface checks.
var (
	_ domain.ValueLedger = (*BalanceStore)(nil)
	_ domain.AuditStore  = (*AuditStore)(nil)
)
