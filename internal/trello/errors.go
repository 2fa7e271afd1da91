package trello

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors returned by Client operations. Match them with errors.Is:
//
//	if errors.Is(err, trello.ErrNotFound) {
//	    // the checklist or comment was deleted on the card
//	}
var (
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("trello: not found")

	// ErrUnauthorized is returned for 401/403 responses (bad key, token or permissions).
	ErrUnauthorized = errors.New("trello: unauthorized")

	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("trello: rate limited")

	// ErrUnavailable is returned for 5xx responses and transport failures.
	ErrUnavailable = errors.New("trello: service unavailable")

	// ErrBadRequest is returned for any other 4xx response.
	ErrBadRequest = errors.New("trello: bad request")
)

// APIError describes a failed Trello request. It wraps one of the sentinel
// errors above.
type APIError struct {
	Method     string
	Path       string // without query string
	StatusCode int    // 0 for transport failures
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v: %s", e.Method, e.Path, e.Err, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return errors.Is(e.Err, ErrRateLimited) || errors.Is(e.Err, ErrUnavailable)
}

// IsRetryable returns true if err is likely to succeed on retry
// (rate limiting or a transient server/transport failure).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// errorForStatus maps an HTTP status to a sentinel error.
func errorForStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return ErrUnavailable
	default:
		return ErrBadRequest
	}
}
