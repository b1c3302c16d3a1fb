package service

import "errors"

var (
	ErrInvalidOrder       = errors.New("invalid order parameters")
	ErrInvalidQuantity    = errors.New("quantity must be positive and finite")
	ErrPriceUnavailable   = errors.New("no current price for instrument")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrNoPosition         = errors.New("no position in instrument")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidAmount      = errors.New("amount must be positive and finite")

	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotCancellable = errors.New("order is not cancellable")
	ErrAccountNotFound     = errors.New("account not found")

	ErrRateLimitExceeded  = errors.New("order rate limit exceeded")
	ErrBackendTimeout     = errors.New("backend timed out")
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrPartialApplication marks a ledger mutation that was applied only in
	// part. It must reach the caller so a reconciliation pass can repair the
	// divergence; it is never swallowed.
	ErrPartialApplication = errors.New("ledger mutation partially applied")
)
