/*
errors.go - Centralized error types for the generic layer

PURPOSE:
  Errors raised by the journal and by storage adapters. Domain packages
  wrap these with their own context.

ERROR CATEGORIES:
  1. Journal errors - Duplicate or failed entry writes
  2. Store errors - Concurrency conflicts
  3. Period errors - Malformed date ranges

USAGE:
    if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
        // the balance event was already recorded
    }

SEE ALSO:
  - ledger.go: Uses these errors
  - leave/errors.go: Domain error taxonomy
*/
package generic

import (
	"errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an entry with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionFailed is returned when an entry cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrConcurrentModification is returned when optimistic locking detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
