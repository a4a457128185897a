// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrUnauthenticated indicates a missing or invalid caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound indicates the requested user or transfer does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation (e.g., transfer id reused).
	ErrConflict = errors.New("conflict")

	// ErrInvalidState indicates a mutation on a terminal or expired transfer.
	ErrInvalidState = errors.New("invalid state")

	// ErrQuotaExceeded indicates a quota policy denial. Use QuotaError for the numbers.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrPolicyViolation indicates an illegal plan change (usage does not fit the target plan).
	ErrPolicyViolation = errors.New("policy violation")

	// ErrStorageUnavailable indicates the object store could not issue a write credential.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrOverflow indicates size arithmetic that would wrap around.
	ErrOverflow = errors.New("overflow")

	// ErrInvalidArgument indicates malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRateLimited indicates the caller exceeded the request budget.
	ErrRateLimited = errors.New("rate limited")
)
