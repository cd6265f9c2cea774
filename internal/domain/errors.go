package domain

import "errors"

// Storage and infrastructure errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
)

// Error categories. Every engine failure unwraps to exactly one of these.
var (
	ErrValidation        = errors.New("validation error")
	ErrAuthorization     = errors.New("authorization error")
	ErrOracle            = errors.New("oracle error")
	ErrSettlement        = errors.New("settlement error")
	ErrEligibility       = errors.New("eligibility error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrReentrancy        = errors.New("reentrant call")
)

// Named engine errors.
var (
	ErrOracleStale         = categorized(ErrOracle, "oracle update exceeded max timestamp allowance")
	ErrOracleNonMonotonic  = categorized(ErrOracle, "oracle update roundId must be larger than oracleLatestRoundId")
	ErrOraclePriceRange    = categorized(ErrOracle, "oracle price does not fit in int64")
	ErrOracleUnavailable   = categorized(ErrOracle, "oracle unavailable")
	ErrAlreadySettled      = categorized(ErrSettlement, "rewards calculated")
	ErrNotEligibleClaim    = categorized(ErrEligibility, "not eligible for claim")
	ErrNotEligibleRefund   = categorized(ErrEligibility, "not eligible for refund")
	ErrRoundNotStarted     = categorized(ErrValidation, "round has not started")
	ErrRoundNotClosed      = categorized(ErrValidation, "round has not ended")
	ErrDuplicateBet        = categorized(ErrValidation, "can only bet once per round")
	ErrRoundNotBettable    = categorized(ErrValidation, "round not bettable")
	ErrWrongEpoch          = categorized(ErrValidation, "bet is too early/late")
	ErrBetTooSmall         = categorized(ErrValidation, "bet amount must be greater than minBetAmount")
	ErrLockTooEarly        = categorized(ErrValidation, "can only lock round after lockTimestamp")
	ErrLockTooLate         = categorized(ErrValidation, "can only lock round within bufferSeconds")
	ErrLockNotStarted      = categorized(ErrValidation, "can only lock round after round has started")
	ErrEndNotLocked        = categorized(ErrValidation, "can only end round after round has locked")
	ErrEndTooEarly         = categorized(ErrValidation, "can only end round after closeTimestamp")
	ErrEndTooLate          = categorized(ErrValidation, "can only end round within bufferSeconds")
	ErrStartTooEarly       = categorized(ErrValidation, "can only start new round after round n-2 closeTimestamp")
	ErrStartPrevNotEnded   = categorized(ErrValidation, "can only start round after round n-2 has ended")
	ErrGenesisStarted      = categorized(ErrValidation, "can only run genesisStartRound once")
	ErrGenesisNotStarted   = categorized(ErrValidation, "can only run after genesisStartRound is triggered")
	ErrGenesisLocked       = categorized(ErrValidation, "can only run genesisLockRound once")
	ErrGenesisNotLocked    = categorized(ErrValidation, "can only run after genesisStartRound and genesisLockRound is triggered")
	ErrPaused              = categorized(ErrValidation, "paused")
	ErrNotPaused           = categorized(ErrValidation, "not paused")
	ErrInvalidParam        = categorized(ErrValidation, "invalid parameter")
	ErrInvalidAddress      = categorized(ErrValidation, "invalid address")
	ErrInvalidPosition     = categorized(ErrValidation, "invalid position")
	ErrNotOperator         = categorized(ErrAuthorization, "not operator")
	ErrNotAdmin            = categorized(ErrAuthorization, "not admin")
	ErrNotOwner            = categorized(ErrAuthorization, "not owner")
	ErrNotAdminOrOperator  = categorized(ErrAuthorization, "not operator/admin")
	ErrMissingCaller       = categorized(ErrAuthorization, "caller identity required")
	ErrBalanceInsufficient = categorized(ErrInsufficientFunds, "transfer amount exceeds balance")
	ErrGuardHeld           = categorized(ErrReentrancy, "reentrancy guard: reentrant call")
	ErrGuardTimeout        = categorized(ErrReentrancy, "reentrancy guard: wait timed out")
)

// categorizedError is a named error that also matches its category under
// errors.Is.
type categorizedError struct {
	category error
	msg      string
}

func categorized(category error, msg string) error {
	return &categorizedError{category: category, msg: msg}
}

func (e *categorizedError) Error() string { return e.msg }

func (e *categorizedError) Unwrap() error { return e.category }

// Category returns the category sentinel err belongs to, or nil when err is
// not an engine error.
func Category(err error) error {
	for _, c := range []error{
		ErrValidation, ErrAuthorization, ErrOracle, ErrSettlement,
		ErrEligibility, ErrInsufficientFunds, ErrReentrancy,
	} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}
