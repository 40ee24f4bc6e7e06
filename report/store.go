/*
store.go - Persistence and notification boundaries

PURPOSE:
  Defines the interfaces between the lifecycle controller and its
  external collaborators: the aggregate store and the notification
  hook. The service is handed implementations at construction; nothing
  in this package reaches for a global.

COMPARE-AND-SWAP CONTRACT:
  CompareAndSwap is the single-writer-wins discipline per aggregate per
  version: the store atomically compares the stored version against the
  expected one, applies the mutator to a copy, bumps the version by
  exactly 1, and persists - with no read-then-write window visible to a
  competing caller. A losing writer gets ErrVersionConflict and zero
  writes; conflicts are detected, never prevented with locks.

SNAPSHOTS:
  Load and List return snapshots (clones). They may be stale by the
  time of a write - that is exactly why the version guard exists.

NOTIFICATION HOOK:
  Notify is fire-and-forget. Implementations must not block the
  mutation path and must never propagate failures back into it; retry,
  backoff, and dead-lettering belong to the collaborator behind the
  hook.

IMPLEMENTATIONS:
  - report/store/memory.go: In-memory, for tests and dev
  - store/sqlite/sqlite.go: SQLite, version-checked UPDATE
  - store/bolt/bolt.go:     bbolt, CAS inside a write transaction
  - notify/notify.go:       Async dispatcher with logging

SEE ALSO:
  - service.go: The only consumer of these interfaces
*/
package report

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Aggregate persistence
// =============================================================================

// Mutator transforms an aggregate inside a compare-and-swap. It
// receives a copy of the stored aggregate at the expected version and
// edits it in place. Returning an error aborts the swap with no write.
// Mutators must not touch Version; the store owns the counter.
type Mutator func(*Report) error

// Store is the aggregate persistence boundary.
type Store interface {
	// Load returns a snapshot of the aggregate, or ErrNotFound.
	Load(ctx context.Context, id ReportID) (*Report, error)

	// Create persists a new aggregate at version 1.
	Create(ctx context.Context, r *Report) error

	// CompareAndSwap applies mutate to the aggregate iff its stored
	// version equals expectedVersion, then increments the version by
	// exactly 1 and persists. Returns the new snapshot, or
	// ErrVersionConflict (as VersionConflictError) on a lost race, or
	// ErrNotFound. A failed swap writes nothing.
	CompareAndSwap(ctx context.Context, id ReportID, expectedVersion int64, mutate Mutator) (*Report, error)

	// List returns snapshots of all aggregates. Ownership filtering is
	// the caller's concern.
	List(ctx context.Context) ([]*Report, error)
}

// =============================================================================
// NOTIFICATION HOOK - Fire-and-forget
// =============================================================================

type EventKind string

const (
	EventReportCreated   EventKind = "report.created"
	EventReportUpdated   EventKind = "report.updated"
	EventCommentAdded    EventKind = "comment.added"
	EventAttachmentAdded EventKind = "attachment.added"
)

// Event describes a completed mutation. Fired after a successful
// persist, never before.
type Event struct {
	Kind     EventKind `json:"kind"`
	ReportID ReportID  `json:"report_id"`
	OwnerID  UserID    `json:"owner_id"`
	ActorID  UserID    `json:"actor_id"`
	Version  int64     `json:"version"`
	At       time.Time `json:"at"`
}

// Notifier accepts a fire call and does not raise back into the
// mutation's caller.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

// Discard is a no-op Notifier for tests and callers that do not care.
var Discard Notifier = NotifierFunc(func(Event) {})
