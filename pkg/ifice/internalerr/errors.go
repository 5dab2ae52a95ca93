package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")

	ErrInvalidIdentifier  = errors.New("invalid identifier")
	ErrAllocationConflict = errors.New("sequence allocation conflict")
)

// IsRetryable reports whether the caller may resubmit the same request.
// Only allocation contention qualifies; every other failure is deterministic.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAllocationConflict)
}
