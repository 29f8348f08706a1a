package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingReason     = errors.New("reason is required")
	ErrNotFound          = errors.New("booking not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrValidation        = errors.New("validation failed")

	// ErrConflict is returned to the loser of two concurrent transitions.
	// It still matches ErrInvalidTransition for callers that only know that kind.
	ErrConflict = fmt.Errorf("%w: booking was modified concurrently", ErrInvalidTransition)
)

// Retryable reports whether the caller may retry the same request unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
