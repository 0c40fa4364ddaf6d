package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so the core can
// branch on error category without knowing the transport.
var (
	// General
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker
	ErrBrokerUnavailable    = errors.New("broker API is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check token)")
	ErrOrderNotFound        = errors.New("order not found at the broker")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Durable store
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
	// ErrStaleTransition is returned by TransitionStatus when the trade's
	// current status no longer matches the expected precondition. Callers
	// treat it as "someone else already applied this transition", not a fault.
	ErrStaleTransition = errors.New("trade status transition precondition no longer holds")

	// Counter / reference stores
	ErrCounterUnavailable = errors.New("shared counter store unavailable")
)
