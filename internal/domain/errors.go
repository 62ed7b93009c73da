package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a request that could not be salvaged by clamping or defaulting.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownKind signals a candidate kind that is not configured.
	ErrUnknownKind = errors.New("unknown candidate kind")
	// ErrForbidden signals a failed ownership or role check.
	ErrForbidden = errors.New("forbidden")
	// ErrBackingStoreUnavailable signals a failed or timed-out candidate fetch. Retryable.
	ErrBackingStoreUnavailable = errors.New("backing store unavailable")
	// ErrCanceled signals that the caller's context ended before the fetch completed.
	ErrCanceled = errors.New("request canceled")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// InvalidInputError wraps ErrInvalidInput with the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidInput.Error(), e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// NewInvalidInput creates an invalid input error for a field.
func NewInvalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}
