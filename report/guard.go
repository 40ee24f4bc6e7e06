package report

// =============================================================================
// VERSION GUARD - Optimistic concurrency check
// =============================================================================

// CheckVersion compares the caller-supplied expected version against the
// stored version.
//
//   - nil expected version is a precondition failure (ErrMissingVersion),
//     not a pass-through: every mutating call must carry concurrency context.
//   - A mismatch yields VersionConflictError. The caller re-reads and
//     retries; this is an expected, recoverable condition.
//   - A failed guard performs zero writes, so it is idempotent under retry.
func CheckVersion(expected *int64, stored int64) error {
	if expected == nil {
		return ErrMissingVersion
	}
	if *expected != stored {
		return &VersionConflictError{Expected: *expected, Stored: stored}
	}
	return nil
}
