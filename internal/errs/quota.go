package errs

import "fmt"

// Resource names the quota dimension that was exceeded.
type Resource string

const (
	ResourceTransfers Resource = "transfers"
	ResourceStorage   Resource = "storage"
)

// QuotaError is a QuotaExceeded denial carrying the limit and the value that would have exceeded it.
type QuotaError struct {
	Resource  Resource
	Limit     uint64
	Attempted uint64
}

// Error implements error.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("quota exceeded: %s limit %d, attempted %d", e.Resource, e.Limit, e.Attempted)
}

// Unwrap makes errors.Is(err, ErrQuotaExceeded) hold.
func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// Quota builds a QuotaError.
func Quota(res Resource, limit, attempted uint64) error {
	return &QuotaError{Resource: res, Limit: limit, Attempted: attempted}
}
