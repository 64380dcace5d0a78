package apperrors

import "errors"

// Standardized venue errors
var (
	ErrNotConnected         = errors.New("not connected")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrOrderRejected        = errors.New("order rejected")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrNetwork              = errors.New("network error")
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrDuplicateOrder       = errors.New("duplicate order")
	ErrReduceOnlyRejected   = errors.New("reduce-only order rejected")
	ErrExchangeMaintenance  = errors.New("exchange maintenance")
	ErrTimestampOutOfBounds = errors.New("timestamp out of bounds")
)

// Caller-side errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrMonitorActive = errors.New("target monitor is active")
)

// IsConnection reports whether err is fatal to the whole session. The caller
// must tear the session down, monitor included.
func IsConnection(err error) bool {
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrAuthenticationFailed)
}

// IsTransient reports whether err is safe to retry unchanged.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrExchangeMaintenance) ||
		errors.Is(err, ErrTimestampOutOfBounds)
}

// IsRejected reports whether the venue refused the order as submitted.
// Retrying without changing the request will fail the same way.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOrderRejected) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidSymbol) ||
		errors.Is(err, ErrDuplicateOrder) ||
		errors.Is(err, ErrReduceOnlyRejected)
}
