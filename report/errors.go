/*
errors.go - Centralized error types for the report engine

PURPOSE:
  All failure kinds in one place. Business-rule denials are values, not
  panics: the service returns them to the transport layer, which maps
  each kind to a status code.

ERROR CATEGORIES:
  1. Lookup errors    - Missing aggregates
  2. Precondition errors - Role/ownership/version-context violations
  3. Concurrency errors  - Optimistic version check failures
  4. Gate errors      - Budget gate denials

RETRY POLICY:
  ErrVersionConflict is terminal per-attempt but designed to be retried
  by the caller after a fresh read. Nothing is retried internally: a
  retry without a fresh read would hit the same conflict.

USAGE:
  if errors.Is(err, report.ErrVersionConflict) {
      // re-read and resubmit
  }

  var denied *report.BudgetExceededError
  if errors.As(err, &denied) {
      fmt.Println(denied.Total, denied.Cap)
  }

SEE ALSO:
  - guard.go: Produces MissingVersion / VersionConflict
  - gate.go: Produces BudgetExceeded
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package report

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when the referenced report does not exist.
	ErrNotFound = errors.New("report not found")

	// ErrForbidden is returned when a role or ownership precondition is
	// violated: a non-owner mutating, a non-admin setting the budget
	// override or changing the owner.
	ErrForbidden = errors.New("forbidden")

	// ErrMissingVersion is returned when a mutating call carries no
	// expected version. Every mutation must supply concurrency context;
	// this is never silently passed through to the store.
	ErrMissingVersion = errors.New("missing expected version")

	// ErrVersionConflict is returned when the optimistic check fails.
	// The caller must re-read and retry. A failed check performs zero
	// writes, so retrying after a fresh read is always safe.
	ErrVersionConflict = errors.New("version conflict")

	// ErrBudgetExceeded is returned when the budget gate denies a
	// DRAFT -> SUBMITTED transition.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInvalidBudgetCap is returned when a mutation would store a
	// negative budget cap. The cap is a non-negative limit; a negative
	// one would silently fail every submission.
	ErrInvalidBudgetCap = errors.New("budget cap must be non-negative")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// VersionConflictError reports the version the caller expected against
// the version actually stored.
type VersionConflictError struct {
	Expected int64
	Stored   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, stored %d", e.Expected, e.Stored)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// BudgetExceededError carries enough detail for the caller to decide to
// request an override: the computed total and the cap it exceeded.
type BudgetExceededError struct {
	Total decimal.Decimal
	Cap   decimal.Decimal
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: total %s over cap %s", e.Total, e.Cap)
}

func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry after a
// fresh read.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsClientError returns true if the error is due to the caller's input
// or preconditions rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrMissingVersion) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrInvalidBudgetCap)
}

// IsNotFound returns true if the error indicates a missing aggregate.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
