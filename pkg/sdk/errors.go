package scout

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by APIError. Use errors.Is() to check.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrUnknownKind      = errors.New("unknown kind")
	ErrNotFound         = errors.New("not found")
	ErrRateLimited      = errors.New("rate limited")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// APIError is a non-2xx response decoded from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("scout: http %d", e.StatusCode)
	}
	return fmt.Sprintf("scout: %s (http %d): %s", e.Code, e.StatusCode, e.Message)
}

// Is maps server error codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch e.Code {
	case "bad_request", "validation_failed":
		return target == ErrInvalidRequest
	case "unauthorized":
		return target == ErrUnauthorized
	case "forbidden":
		return target == ErrForbidden
	case "unknown_kind":
		return target == ErrUnknownKind
	case "not_found":
		return target == ErrNotFound
	case "rate_limited":
		return target == ErrRateLimited
	case "store_unavailable":
		return target == ErrStoreUnavailable
	}
	return false
}
