package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/updown/internal/domain"
)

// LedgerStore implements domain.Ledger. Each Atomic unit is one transaction
// that starts by row-locking engine_state, so units are serialized across
// every process sharing the database.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Atomic implements domain.Ledger. The ctx handed to fn carries the
// transaction so BalanceStore transfers join it.
func (s *LedgerStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin unit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(withTx(ctx, tx), &ledgerTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit unit: %w", err)
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

func scanState(row pgx.Row) (domain.State, error) {
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

func scanRound(row pgx.Row) (domain.Round, error) {
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

func scanBet(row pgx.Row) (domain.BetInfo, error) {
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
	st, err := scanState(s.pool.QueryRow(ctx, `SELECT `+stateCols+` FROM engine_state WHERE id = 1`))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.State{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("postgres: get state: %w", err)
	}
	return st, nil
}

// GetRound returns one committed round.
func (s *LedgerStore) GetRound(ctx context.Context, epoch int64) (domain.Round, error) {
	return getRound(ctx, s.pool, epoch)
}

// GetBet returns one committed bet.
func (s *LedgerStore) GetBet(ctx context.Context, epoch int64, user string) (domain.BetInfo, error) {
	return getBet(ctx, s.pool, epoch, user)
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
		WHERE ur.user_addr = $1
		ORDER BY ur.seq
		OFFSET $2 LIMIT $3`
	rows, err := s.pool.Query(ctx, query, user, cursor, size)
	if err != nil {
		return nil, fmt.Errorf("postgres: user rounds %s: %w", user, err)
	}
	defer rows.Close()

	var out []domain.UserRound
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user round: %w", err)
		}
		out = append(out, domain.UserRound{Epoch: b.Epoch, Bet: b})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: user rounds rows: %w", err)
	}
	return out, nil
}

// UserRoundsLength returns the size of a user's index.
func (s *LedgerStore) UserRoundsLength(ctx context.Context, user string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_rounds WHERE user_addr = $1`, user).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: user rounds length %s: %w", user, err)
	}
	return n, nil
}

// ListRounds returns rounds with from <= epoch <= to.
func (s *LedgerStore) ListRounds(ctx context.Context, from, to int64) ([]domain.Round, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roundCols+` FROM rounds WHERE epoch BETWEEN $1 AND $2 ORDER BY epoch`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rounds: %w", err)
	}
	defer rows.Close()

	var out []domain.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan round: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rounds rows: %w", err)
	}
	return out, nil
}

// ListBets returns the bets of one epoch ordered by user.
func (s *LedgerStore) ListBets(ctx context.Context, epoch int64) ([]domain.BetInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE epoch = $1 ORDER BY user_addr`, epoch)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets %d: %w", epoch, err)
	}
	defer rows.Close()

	var out []domain.BetInfo
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return out, nil
}

func getRound(ctx context.Context, q querier, epoch int64) (domain.Round, error) {
	r, err := scanRound(q.QueryRow(ctx, `SELECT `+roundCols+` FROM rounds WHERE epoch = $1`, epoch))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Round{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Round{}, fmt.Errorf("postgres: get round %d: %w", epoch, err)
	}
	return r, nil
}

func getBet(ctx context.Context, q querier, epoch int64, user string) (domain.BetInfo, error) {
	b, err := scanBet(q.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE epoch = $1 AND user_addr = $2`, epoch, user))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BetInfo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BetInfo{}, fmt.Errorf("postgres: get bet %d/%s: %w", epoch, user, err)
	}
	return b, nil
}

// ledgerTx is the write view inside one transaction.
type ledgerTx struct {
	q querier
}

func (t *ledgerTx) State(ctx context.Context) (domain.State, error) {
	st, err := scanState(t.q.QueryRow(ctx, `SELECT `+stateCols+` FROM engine_state WHERE id = 1 FOR UPDATE`))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.State{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("postgres: lock state: %w", err)
	}
	return st, nil
}

func (t *ledgerTx) SaveState(ctx context.Context, st domain.State) error {
	const query = `
		INSERT INTO engine_state (
			id, current_epoch, genesis_start_once, genesis_lock_once, paused,
			oracle_latest_round_id, treasury_amount, interval_seconds, buffer_seconds,
			min_bet_amount, treasury_fee_bps, oracle_address, oracle_update_allowance_seconds, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			current_epoch = EXCLUDED.current_epoch,
			genesis_start_once = EXCLUDED.genesis_start_once,
			genesis_lock_once = EXCLUDED.genesis_lock_once,
			paused = EXCLUDED.paused,
			oracle_latest_round_id = EXCLUDED.oracle_latest_round_id,
			treasury_amount = EXCLUDED.treasury_amount,
			interval_seconds = EXCLUDED.interval_seconds,
			buffer_seconds = EXCLUDED.buffer_seconds,
			min_bet_amount = EXCLUDED.min_bet_amount,
			treasury_fee_bps = EXCLUDED.treasury_fee_bps,
			oracle_address = EXCLUDED.oracle_address,
			oracle_update_allowance_seconds = EXCLUDED.oracle_update_allowance_seconds,
			updated_at = NOW()`
	p := st.Params
	_, err := t.q.Exec(ctx, query,
		st.CurrentEpoch, st.GenesisStartOnce, st.GenesisLockOnce, st.Paused,
		st.OracleLatestRoundID.String(), st.TreasuryAmount,
		int64(p.Interval/time.Second), int64(p.Buffer/time.Second),
		p.MinBetAmount, p.TreasuryFeeBps, p.OracleAddress, int64(p.OracleUpdateAllowance/time.Second),
	)
	if err != nil {
		return fmt.Errorf("postgres: save state: %w", err)
	}
	return nil
}

func (t *ledgerTx) Round(ctx context.Context, epoch int64) (domain.Round, error) {
	return getRound(ctx, t.q, epoch)
}

func (t *ledgerTx) CreateRound(ctx context.Context, r domain.Round) error {
	const query = `
		INSERT INTO rounds (` + roundCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (epoch) DO NOTHING`
	tag, err := t.q.Exec(ctx, query, roundArgs(r)...)
	if err != nil {
		return fmt.Errorf("postgres: create round %d: %w", r.Epoch, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: create round %d: %w", r.Epoch, domain.ErrAlreadyExists)
	}
	return nil
}

func (t *ledgerTx) UpdateRound(ctx context.Context, r domain.Round) error {
	const query = `
		UPDATE rounds SET
			start_ts = $2, lock_ts = $3, close_ts = $4,
			lock_price = $5, close_price = $6,
			lock_oracle_round_id = $7, close_oracle_round_id = $8,
			total_amount = $9, bull_amount = $10, bear_amount = $11,
			reward_base_cal_amount = $12, reward_amount = $13,
			oracle_called = $14, rewards_calculated = $15,
			updated_at = NOW()
		WHERE epoch = $1`
	tag, err := t.q.Exec(ctx, query, roundArgs(r)...)
	if err != nil {
		return fmt.Errorf("postgres: update round %d: %w", r.Epoch, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update round %d: %w", r.Epoch, domain.ErrNotFound)
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
	tag, err := t.q.Exec(ctx, `
		INSERT INTO bets (epoch, user_addr, position, amount, claimed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (epoch, user_addr) DO NOTHING`,
		b.Epoch, b.User, string(b.Position), b.Amount, b.Claimed,
	)
	if err != nil {
		return fmt.Errorf("postgres: record bet %d/%s: %w", b.Epoch, b.User, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: record bet %d/%s: %w", b.Epoch, b.User, domain.ErrDuplicateBet)
	}

	_, err = t.q.Exec(ctx, `
		INSERT INTO user_rounds (user_addr, seq, epoch)
		SELECT $1, COALESCE(MAX(seq) + 1, 0), $2 FROM user_rounds WHERE user_addr = $1`,
		b.User, b.Epoch,
	)
	if err != nil {
		return fmt.Errorf("postgres: index bet %d/%s: %w", b.Epoch, b.User, err)
	}
	return nil
}

func (t *ledgerTx) MarkClaimed(ctx context.Context, epoch int64, user string) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE bets SET claimed = TRUE WHERE epoch = $1 AND user_addr = $2`, epoch, user)
	if err != nil {
		return fmt.Errorf("postgres: mark claimed %d/%s: %w", epoch, user, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark claimed %d/%s: %w", epoch, user, domain.ErrNotFound)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Ledger = (*LedgerStore)(nil)
