package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/updown/internal/domain"
)

const bpsDenominator = 10000

// Settlement is the outcome of settling one round.
type Settlement struct {
	RewardBase   int64
	RewardAmount int64
	TreasuryCut  int64
}

// Settle computes the reward split of an ended round and returns the round
// with its settlement fields set. A round settles exactly once.
func Settle(r domain.Round, feeBps int64) (domain.Round, Settlement, error) {
	if r.RewardsCalculated || r.RewardBaseCalAmount != 0 || r.RewardAmount != 0 {
		return r, Settlement{}, domain.ErrAlreadySettled
	}

	var s Settlement
	switch r.Winner() {
	case domain.PositionBull:
		s.RewardBase = r.BullAmount
		s.TreasuryCut = mulDiv(r.TotalAmount, feeBps, bpsDenominator)
		s.RewardAmount = r.TotalAmount - s.TreasuryCut
	case domain.PositionBear:
		s.RewardBase = r.BearAmount
		s.TreasuryCut = mulDiv(r.TotalAmount, feeBps, bpsDenominator)
		s.RewardAmount = r.TotalAmount - s.TreasuryCut
	default:
		// tie: the house takes the whole pool
		s.TreasuryCut = r.TotalAmount
	}

	r.RewardBaseCalAmount = s.RewardBase
	r.RewardAmount = s.RewardAmount
	r.RewardsCalculated = true
	return r, s, nil
}

func (u *unit) settle(ctx context.Context, epoch int64) error {
	r, err := u.tx.Round(ctx, epoch)
	if err != nil {
		return fmt.Errorf("load round %d: %w", epoch, err)
	}
	r, s, err := Settle(r, u.st.Params.TreasuryFeeBps)
	if err != nil {
		return fmt.Errorf("settle round %d: %w", epoch, err)
	}
	if err := u.tx.UpdateRound(ctx, r); err != nil {
		return fmt.Errorf("settle round %d: %w", epoch, err)
	}
	u.st.TreasuryAmount += s.TreasuryCut
	u.emit(domain.Event{
		Type:         domain.EventRewardsCalculated,
		Epoch:        epoch,
		RewardBase:   s.RewardBase,
		RewardAmount: s.RewardAmount,
		TreasuryCut:  s.TreasuryCut,
	})
	return nil
}

// mulDiv returns a*b/c rounded toward zero without intermediate overflow.
// Callers guarantee the quotient fits in int64.
func mulDiv(a, b, c int64) int64 {
	if c == 0 {
		return 0
	}
	n := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	return n.Quo(n, big.NewInt(c)).Int64()
}
