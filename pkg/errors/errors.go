package apperrors

import "errors"

// Standardized errors shared across the lifecycle services
var (
	ErrKeyNotFound           = errors.New("key not found")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderTerminal         = errors.New("order is terminal")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrNetwork               = errors.New("network error")
	ErrRateLimitExceeded     = errors.New("rate limit exceeded")
	ErrIDTooLong             = errors.New("identifier exceeds length limit")
)

// IsNotFound reports whether err is a missing-key or missing-order error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrOrderNotFound)
}
