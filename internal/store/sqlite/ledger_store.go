package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// LedgerStore implements domain.Ledger.
type LedgerStore struct {
	db *sql.DB
}

// NewLedgerStore creates a LedgerStore on db.
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Atomic runs fn in one transaction. The ctx handed to fn carries the
// transaction so BalanceStore and AuditStore calls join it.
func (s *LedgerStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin unit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(withTx(ctx, tx), &ledgerTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit unit: %w", err)
	}
	return nil
}

const stateCols = `current_epoch, genesis_start_once, genesis_lock_once, paused,
	oracle_latest_round_id, treasury_amount, interval_seconds, buffer_seconds,
	min_bet_amount, treasury_fee_bps, oracle_address, oracle_update_allowance_seconds`

const roundCols = `epoch, start_ts, lock_ts, close_ts, lock_price, close_price,
	lock_oracle_round_id, close_oracle_round_id, total_amount, bull_amount,
	bear_amount, reward_base_cal_amount, reward_amount, oracle_called, rewards_calculated`

const betCols = `epoch, user_addr, position, amount, claimed`

func scanState(row scanner) (domain.State, error) {
	var st domain.State
	var latest string
	var interval, buffer, allowance int64
	err := row.Scan(
		&st.CurrentEpoch, &st.GenesisStartOnce, &st.GenesisLockOnce, &st.Paused,
		&latest, &st.TreasuryAmount, &interval, &buffer,
		&st.Params.MinBetAmount, &st.Params.TreasuryFeeBps, &st.Params.OracleAddress, &allowance,
	)
	if err != nil {
		return domain.State{}, err
	}
	if st.OracleLatestRoundID, err = domain.ParseRoundID(latest); err != nil {
		return domain.State{}, err
	}
	st.Params.Interval = time.Duration(interval) * time.Second
	st.Params.Buffer = time.Duration(buffer) * time.Second
	st.Params.OracleUpdateAllowance = time.Duration(allowance) * time.Second
	return st, nil
}

func scanRound(row scanner) (domain.Round, error) {
	var r domain.Round
	var startTS, lockTS, closeTS int64
	var lockID, closeID string
	err := row.Scan(
		&r.Epoch, &startTS, &lockTS, &closeTS, &r.LockPrice, &r.ClosePrice,
		&lockID, &closeID, &r.TotalAmount, &r.BullAmount,
		&r.BearAmount, &r.RewardBaseCalAmount, &r.RewardAmount, &r.OracleCalled, &r.RewardsCalculated,
	)
	if err != nil {
		return domain.Round{}, err
	}
	r.StartTime, r.LockTime, r.CloseTime = fromUnix(startTS), fromUnix(lockTS), fromUnix(closeTS)
	if r.LockOracleRoundID, err = domain.ParseRoundID(lockID); err != nil {
		return domain.Round{}, err
	}
	if r.CloseOracleRoundID, err = domain.ParseRoundID(closeID); err != nil {
		return domain.Round{}, err
	}
	return r, nil
}

func scanBet(row scanner) (domain.BetInfo, error) {
	var b domain.BetInfo
	var pos string
	if err := row.Scan(&b.Epoch, &b.User, &pos, &b.Amount, &b.Claimed); err != nil {
		return domain.BetInfo{}, err
	}
	b.Position = domain.Position(pos)
	return b, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

// GetState returns the committed process state.
func (s *LedgerStore) GetState(ctx context.Context) (domain.State, error) {
	return getState(ctx, s.db)
}

// GetRound returns one committed round.
func (s *LedgerStore) GetRound(ctx context.Context, epoch int64) (domain.Round, error) {
	return getRound(ctx, s.db, epoch)
}

// GetBet returns one committed bet.
func (s *LedgerStore) GetBet(ctx context.Context, epoch int64, user string) (domain.BetInfo, error) {
	return getBet(ctx, s.db, epoch, user)
}

// UserRounds pages through a user's index in insertion order.
func (s *LedgerStore) UserRounds(ctx context.Context, user string, cursor, size int) ([]domain.UserRound, error) {
	if cursor < 0 || size <= 0 {
		return nil, nil
	}
	const query = `
		SELECT b.epoch, b.user_addr, b.position, b.amount, b.claimed
		FROM user_rounds ur
		JOIN bets b ON b.epoch = ur.epoch AND b.user_addr = ur.user_addr
		WHERE ur.user_addr = ?
		ORDER BY ur.seq
		LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, user, size, cursor)
	if err != nil {
		return nil, fmt.Errorf("sqlite: user rounds %s: %w", user, err)
	}
	defer rows.Close()

	var out []domain.UserRound
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan user round: %w", err)
		}
		out = append(out, domain.UserRound{Epoch: b.Epoch, Bet: b})
	}
	return out, rows.Err()
}

// UserRoundsLength returns the size of a user's index.
func (s *LedgerStore) UserRoundsLength(ctx context.Context, user string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_rounds WHERE user_addr = ?`, user).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: user rounds length %s: %w", user, err)
	}
	return n, nil
}

// ListRounds returns rounds with from <= epoch <= to.
func (s *LedgerStore) ListRounds(ctx context.Context, from, to int64) ([]domain.Round, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE epoch BETWEEN ? AND ? ORDER BY epoch`, from, to)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rounds: %w", err)
	}
	defer rows.Close()

	var out []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListBets returns the bets of one epoch ordered by user.
func (s *LedgerStore) ListBets(ctx context.Context, epoch int64) ([]domain.BetInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+betCols+` FROM bets WHERE epoch = ? ORDER BY user_addr`, epoch)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list bets %d: %w", epoch, err)
	}
	defer rows.Close()

	var out []domain.BetInfo
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan bet: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func getState(ctx context.Context, q querier) (domain.State, error) {
	st, err := scanState(q.QueryRowContext(ctx, `SELECT `+stateCols+` FROM engine_state WHERE id = 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.State{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("sqlite: get state: %w", err)
	}
	return st, nil
}

func getRound(ctx context.Context, q querier, epoch int64) (domain.Round, error) {
	r, err := scanRound(q.QueryRowContext(ctx, `SELECT `+roundCols+` FROM rounds WHERE epoch = ?`, epoch))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Round{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Round{}, fmt.Errorf("sqlite: get round %d: %w", epoch, err)
	}
	return r, nil
}

func getBet(ctx context.Context, q querier, epoch int64, user string) (domain.BetInfo, error) {
	b, err := scanBet(q.QueryRowContext(ctx,
		`SELECT `+betCols+` FROM bets WHERE epoch = ? AND user_addr = ?`, epoch, user))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BetInfo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BetInfo{}, fmt.Errorf("sqlite: get bet %d/%s: %w", epoch, user, err)
	}
	return b, nil
}

type ledgerTx struct {
	q querier
}

func (t *ledgerTx) State(ctx context.Context) (domain.State, error) {
	return getState(ctx, t.q)
}

func (t *ledgerTx) SaveState(ctx context.Context, st domain.State) error {
	const query = `
		INSERT INTO engine_state (id, ` + stateCols + `)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			current_epoch = excluded.current_epoch,
			genesis_start_once = excluded.genesis_start_once,
			genesis_lock_once = excluded.genesis_lock_once,
			paused = excluded.paused,
			oracle_latest_round_id = excluded.oracle_latest_round_id,
			treasury_amount = excluded.treasury_amount,
			interval_seconds = excluded.interval_seconds,
			buffer_seconds = excluded.buffer_seconds,
			min_bet_amount = excluded.min_bet_amount,
			treasury_fee_bps = excluded.treasury_fee_bps,
			oracle_address = excluded.oracle_address,
			oracle_update_allowance_seconds = excluded.oracle_update_allowance_seconds`
	p := st.Params
	_, err := t.q.ExecContext(ctx, query,
		st.CurrentEpoch, st.GenesisStartOnce, st.GenesisLockOnce, st.Paused,
		st.OracleLatestRoundID.String(), st.TreasuryAmount,
		int64(p.Interval/time.Second), int64(p.Buffer/time.Second),
		p.MinBetAmount, p.TreasuryFeeBps, p.OracleAddress, int64(p.OracleUpdateAllowance/time.Second),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save state: %w", err)
	}
	return nil
}

func (t *ledgerTx) Round(ctx context.Context, epoch int64) (domain.Round, error) {
	return getRound(ctx, t.q, epoch)
}

func (t *ledgerTx) CreateRound(ctx context.Context, r domain.Round) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO rounds (`+roundCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (epoch) DO NOTHING`, roundArgs(r)...)
	if err != nil {
		return fmt.Errorf("sqlite: create round %d: %w", r.Epoch, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: create round %d: %w", r.Epoch, domain.ErrAlreadyExists)
	}
	return nil
}

func (t *ledgerTx) UpdateRound(ctx context.Context, r domain.Round) error {
	args := append(roundArgs(r)[1:], r.Epoch)
	res, err := t.q.ExecContext(ctx, `
		UPDATE rounds SET
			start_ts = ?, lock_ts = ?, close_ts = ?,
			lock_price = ?, close_price = ?,
			lock_oracle_round_id = ?, close_oracle_round_id = ?,
			total_amount = ?, bull_amount = ?, bear_amount = ?,
			reward_base_cal_amount = ?, reward_amount = ?,
			oracle_called = ?, rewards_calculated = ?
		WHERE epoch = ?`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: update round %d: %w", r.Epoch, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: update round %d: %w", r.Epoch, domain.ErrNotFound)
	}
	return nil
}

func roundArgs(r domain.Round) []any {
	return []any{
		r.Epoch, toUnix(r.StartTime), toUnix(r.LockTime), toUnix(r.CloseTime),
		r.LockPrice, r.ClosePrice,
		r.LockOracleRoundID.String(), r.CloseOracleRoundID.String(),
		r.TotalAmount, r.BullAmount, r.BearAmount,
		r.RewardBaseCalAmount, r.RewardAmount,
		r.OracleCalled, r.RewardsCalculated,
	}
}

func (t *ledgerTx) Bet(ctx context.Context, epoch int64, user string) (domain.BetInfo, error) {
	return getBet(ctx, t.q, epoch, user)
}

func (t *ledgerTx) RecordBet(ctx context.Context, b domain.BetInfo) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO bets (epoch, user_addr, position, amount, claimed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (epoch, user_addr) DO NOTHING`,
		b.Epoch, b.User, string(b.Position), b.Amount, b.Claimed)
	if err != nil {
		return fmt.Errorf("sqlite: record bet %d/%s: %w", b.Epoch, b.User, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: record bet %d/%s: %w", b.Epoch, b.User, domain.ErrDuplicateBet)
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO user_rounds (user_addr, seq, epoch)
		SELECT ?, COALESCE(MAX(seq) + 1, 0), ? FROM user_rounds WHERE user_addr = ?`,
		b.User, b.Epoch, b.User)
	if err != nil {
		return fmt.Errorf("sqlite: index bet %d/%s: %w", b.Epoch, b.User, err)
	}
	return nil
}

func (t *ledgerTx) MarkClaimed(ctx context.Context, epoch int64, user string) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE bets SET claimed = 1 WHERE epoch = ? AND user_addr = ?`, epoch, user)
	if err != nil {
		return fmt.Errorf("sqlite: mark claimed %d/%s: %w", epoch, user, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: mark claimed %d/%s: %w", epoch, user, domain.ErrNotFound)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Ledger = (*LedgerStore)(nil)
