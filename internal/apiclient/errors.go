package apiclient

import (
	"errors"
	"fmt"

	"github.com/matsen/firstrecord/internal/apperr"
)

// Common errors returned by the client.
var (
	// ErrNotFound indicates the resource was not found.
	ErrNotFound = fmt.Errorf("%w: not found", apperr.ErrUpstreamUnavailable)

	// ErrAuthError indicates an authentication error (missing/invalid API key).
	ErrAuthError = fmt.Errorf("%w: authentication error", apperr.ErrUpstreamUnavailable)

	// ErrRateLimited indicates the upstream rate limit has been exceeded.
	ErrRateLimited = fmt.Errorf("%w: rate limit exceeded", apperr.ErrUpstreamUnavailable)

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = fmt.Errorf("%w: network error", apperr.ErrUpstreamUnavailable)

	// ErrInvalidResponse indicates an unexpected response body.
	ErrInvalidResponse = fmt.Errorf("%w: invalid response", apperr.ErrUpstreamUnavailable)
)

// APIError represents a non-2xx response from an upstream API.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap classifies every status error as an upstream failure.
func (e *APIError) Unwrap() error { return apperr.ErrUpstreamUnavailable }

// IsStatusError reports whether err is an upstream HTTP status failure (as
// opposed to a transport failure). Adapters turn these into empty results.
func IsStatusError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAuthError) || errors.Is(err, ErrRateLimited)
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsAuthError returns true if the error indicates an authentication problem.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrAuthError) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// IsSoftFailure reports whether an adapter should answer err with an empty
// result instead of propagating it: upstream status failures and unparseable
// bodies are "no results" from the caller's point of view.
func IsSoftFailure(err error) bool {
	return IsStatusError(err) || errors.Is(err, ErrInvalidResponse)
}
