package ledger

import "errors"

// Validation failure taxonomy. Every error is terminal and non-retryable: a
// failed instruction has zero effect and the caller must correct the input
// and resubmit.
var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMarketClosed        = errors.New("market closed")
	ErrMarketNotResolved   = errors.New("market not resolved")
	ErrInvalidOdds         = errors.New("invalid odds")
	ErrInvalidMultiplier   = errors.New("invalid multiplier")
	ErrInvalidTeam         = errors.New("invalid team")
	ErrInvalidResult       = errors.New("invalid result")
	ErrAmountOutOfRange    = errors.New("amount out of range")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrMaxExposureExceeded = errors.New("max exposure exceeded")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrBetNotFound         = errors.New("bet not found")
	ErrOverflow            = errors.New("overflow")
)

// Record store failures.
var (
	ErrRecordExists   = errors.New("record already exists")
	ErrRecordNotFound = errors.New("record not found")
)
