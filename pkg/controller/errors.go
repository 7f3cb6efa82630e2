package controller

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed controller API failures
var (
	ErrAuthFailed  = errors.New("controller authentication failed")
	ErrRateLimited = errors.New("controller rate limit exceeded")
	ErrNotFound    = errors.New("object not found on controller")
	ErrConflict    = errors.New("object conflict on controller")
	ErrUnavailable = errors.New("controller unavailable")
)

// APIError wraps a controller API failure with the operation and HTTP
// status that produced it. Unwrap yields one of the sentinels above so
// callers can classify with errors.Is.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether an error is worth retrying: rate limits,
// connectivity blips, and controller-side 5xx responses.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// IsFatal reports whether an error must halt the run immediately.
// Authentication failures are never retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
