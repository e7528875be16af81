// Package apperr defines the error kinds shared across firstrecord.
//
// Every package wraps one of these sentinels (directly or through its own
// sentinel) so callers can classify a failure with errors.Is without knowing
// which component produced it.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates bad input shape or range. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrUpstreamUnavailable indicates a single source or provider failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrQuotaExceeded indicates a billable call was pre-empted by the daily quota.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrSecurityRejection indicates a signature, size, or path check failed.
	ErrSecurityRejection = errors.New("security rejection")

	// ErrInternal indicates an unexpected failure.
	ErrInternal = errors.New("internal error")
)

// ErrNotFound is a validation error for a missing resource id.
var ErrNotFound = fmt.Errorf("%w: not found", ErrValidation)

// Kind names an error class for transport mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindUpstream   Kind = "upstream_unavailable"
	KindQuota      Kind = "quota_exceeded"
	KindSecurity   Kind = "security_rejection"
	KindInternal   Kind = "internal"
)

// KindOf classifies err. Errors that wrap none of the sentinels are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSecurityRejection):
		return KindSecurity
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrUpstreamUnavailable):
		return KindUpstream
	default:
		return KindInternal
	}
}

// PublicMessage returns the message safe to show a caller. Internal errors
// are replaced with a generic string so paths and credentials never leak.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	return err.Error()
}
