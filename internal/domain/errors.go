package domain

import "errors"

// Domain errors
var (
	ErrEntryNotFound  = errors.New("entry not found in mirror")
	ErrUnauthorized   = errors.New("upstream rejected credential")
	ErrThrottled      = errors.New("upstream rate limit exceeded")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}

// IsFatalUpstreamError reports whether an upstream error must not be retried
// within the current sync run.
func IsFatalUpstreamError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
