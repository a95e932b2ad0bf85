package domain

import "errors"

// Sentinel errors for domain-level error handling. Admission failures
// (insufficient balance, unknown order id) are expected outcomes of normal
// trading logic and are signalled through these values, never panics.
// The handler layer maps them to HTTP status codes.
var (
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInsufficientLocked  = errors.New("insufficient_locked")
	ErrOrderNotFound       = errors.New("order_not_found")
	ErrPairNotFound        = errors.New("pair_not_found")
	ErrInvalidPair         = errors.New("invalid_pair")
	ErrSimulationRunning   = errors.New("simulation_running")
	ErrNotRunning          = errors.New("simulation_not_running")
	ErrStrategyNotFound    = errors.New("strategy_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
