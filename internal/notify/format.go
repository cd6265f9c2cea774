package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/updown/internal/domain"
)

// Formatter renders events as human-readable notifications. Stakes and
// prices are integers in the smallest unit; the decimals fields scale them
// for display.
type Formatter struct {
	AmountDecimals int32
	PriceDecimals  int32
	// Symbol is appended to amounts, e.g. "BNB".
	Symbol string
}

func (f Formatter) amount(v int64) string {
	s := decimal.New(v, -f.AmountDecimals).String()
	if f.Symbol != "" {
		s += " " + f.Symbol
	}
	return s
}

func (f Formatter) price(v int64) string {
	return decimal.New(v, -f.PriceDecimals).StringFixed(f.PriceDecimals)
}

// Format returns the title and body for e.
func (f Formatter) Format(e domain.Event) (string, string) {
	switch e.Type {
	case domain.EventStartRound:
		return fmt.Sprintf("Round %d started", e.Epoch), ""
	case domain.EventLockRound:
		return fmt.Sprintf("Round %d locked", e.Epoch),
			fmt.Sprintf("lock price %s (oracle round %s)", f.price(e.Price), e.OracleRoundID)
	case domain.EventEndRound:
		return fmt.Sprintf("Round %d ended", e.Epoch),
			fmt.Sprintf("close price %s (oracle round %s)", f.price(e.Price), e.OracleRoundID)
	case domain.EventBetBull, domain.EventBetBear:
		return fmt.Sprintf("%s bet on round %d", strings.ToUpper(string(e.Position)), e.Epoch),
			fmt.Sprintf("%s staked %s", e.User, f.amount(e.Amount))
	case domain.EventRewardsCalculated:
		return fmt.Sprintf("Round %d settled", e.Epoch),
			fmt.Sprintf("reward base %s, reward pool %s, treasury %s",
				f.amount(e.RewardBase), f.amount(e.RewardAmount), f.amount(e.TreasuryCut))
	case domain.EventClaim:
		return fmt.Sprintf("Claim on round %d", e.Epoch),
			fmt.Sprintf("%s claimed %s", e.User, f.amount(e.Amount))
	case domain.EventTreasuryClaim:
		return "Treasury claimed", fmt.Sprintf("%s paid to %s", f.amount(e.Amount), e.User)
	case domain.EventPause:
		return "Engine paused", fmt.Sprintf("at epoch %d", e.Epoch)
	case domain.EventUnpause:
		return "Engine unpaused", fmt.Sprintf("at epoch %d", e.Epoch)
	}
	if e.Params != nil {
		p := e.Params
		return "Parameters changed", fmt.Sprintf("%s: interval %s, buffer %s, min bet %s, fee %d bps, oracle %s, allowance %s",
			e.Type, p.Interval, p.Buffer, f.amount(p.MinBetAmount), p.TreasuryFeeBps, p.OracleAddress, p.OracleUpdateAllowance)
	}
	return string(e.Type), fmt.Sprintf("epoch %d", e.Epoch)
}
