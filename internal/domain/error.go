package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Payment pipeline errors
	ErrPromoExhausted  = errors.New("promo code has no remaining activations")
	ErrPromoInactive   = errors.New("promo code is not active")
	ErrLockUnavailable = errors.New("could not acquire payment lock")
)
