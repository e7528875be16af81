package main

import "github.com/matsen/firstrecord/internal/apperr"

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (runtime failure, internal error)
	ExitConfigError = 2 // Configuration error (missing or invalid config)
	ExitValidation  = 3 // Invalid input or unknown id
	ExitSecurity    = 4 // Upload rejected by signature, size, or path checks
	ExitQuota       = 5 // Free-tier LLM quota exhausted
	ExitUpstream    = 6 // An external service failed
)

// exitCodeFor maps an error to its exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return ExitValidation
	case apperr.KindSecurity:
		return ExitSecurity
	case apperr.KindQuota:
		return ExitQuota
	case apperr.KindUpstream:
		return ExitUpstream
	default:
		return ExitError
	}
}
