package domain

import "errors"

// Domain errors
var (
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateTransaction = errors.New("ledger transaction id already recorded")
	ErrStorageUnavailable   = errors.New("persistence layer unavailable")
	ErrLedgerUnavailable    = errors.New("ledger network unavailable")
	ErrInsufficientBalance  = errors.New("insufficient ledger balance")
	ErrNotConfigured        = errors.New("ledger signing key not configured")
	ErrPlayerNotFound       = errors.New("player not found")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInternalError        = errors.New("internal server error")
)

// IsValidationError checks if an error is a validation type error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidRequest)
}
