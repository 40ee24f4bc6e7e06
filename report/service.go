/*
service.go - The report lifecycle controller

PURPOSE:
  Orchestrates the version guard, the budget gate, and the store to
  implement create and update. This is the ONLY component in the
  package with side effects: store writes and the notification hook.

CONTROL FLOW (update):
  load snapshot -> ownership check -> version guard -> precondition
  checks (override/owner are admin-only) -> merge onto a clone ->
  budget gate against the POST-MERGE proposed state -> compare-and-swap
  -> notify -> return.

FAILURE POLICY:
  Business-rule denials are returned as values from errors.go; nothing
  is thrown for control flow and nothing is retried internally. Only
  the notification hook is decoupled from the verdict: it fires after
  a successful persist and its failures never reach the caller.

CONCURRENCY:
  The service is stateless per call and performs no internal waiting.
  Every load is a snapshot that may be stale by write time; the store's
  compare-and-swap detects the race and the losing caller retries with
  a fresh read.

SEE ALSO:
  - guard.go, gate.go, command.go: The pure pieces composed here
  - store.go: The collaborator contracts
*/
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the lifecycle controller. Collaborators are injected at
// construction; there is no ambient store or notifier.
type Service struct {
	store    Store
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewService builds a Service. notifier and log may be nil.
func NewService(store Store, notifier Notifier, log *zap.Logger) *Service {
	if notifier == nil {
		notifier = Discard
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// WithClock pins the service clock. For tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// =============================================================================
// CREATE
// =============================================================================

// Create builds a new aggregate at version 1. A requested initial
// SUBMITTED status runs the budget gate against the as-constructed
// entries, cap, and override. Setting the override requires an
// administrator.
func (s *Service) Create(ctx context.Context, cmd CreateCommand, caller Identity) (*Report, error) {
	ownerID := cmd.OwnerID
	if ownerID == "" {
		ownerID = caller.UserID
	}
	if ownerID != caller.UserID && !caller.IsAdmin() {
		return nil, fmt.Errorf("create for owner %s: %w", ownerID, ErrForbidden)
	}
	if cmd.BudgetOverride && !caller.IsAdmin() {
		return nil, fmt.Errorf("set budget override: %w", ErrForbidden)
	}
	if cmd.BudgetCap.IsNegative() {
		return nil, fmt.Errorf("cap %s: %w", cmd.BudgetCap, ErrInvalidBudgetCap)
	}

	status := cmd.Status
	if status == "" {
		status = StatusDraft
	}

	entries := cloneEntries(cmd.Entries)
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
	}

	// Creation into SUBMITTED is gated exactly like an update would be.
	decision := EvaluateGate(GateInput{
		CurrentStatus:  StatusDraft,
		NextStatus:     status,
		Entries:        entries,
		BudgetCap:      cmd.BudgetCap,
		BudgetOverride: cmd.BudgetOverride,
	})
	if err := decision.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	r := &Report{
		ID:             ReportID(uuid.NewString()),
		Title:          cmd.Title,
		OwnerID:        ownerID,
		Department:     cmd.Department,
		Status:         status,
		BudgetCap:      cmd.BudgetCap,
		BudgetOverride: cmd.BudgetOverride,
		Entries:        entries,
		AccessGrants:   append([]AccessGrant(nil), cmd.AccessGrants...),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}

	s.log.Info("report created",
		zap.String("report_id", string(r.ID)),
		zap.String("owner_id", string(r.OwnerID)),
		zap.String("status", string(r.Status)))

	s.notifier.Notify(Event{
		Kind:     EventReportCreated,
		ReportID: r.ID,
		OwnerID:  r.OwnerID,
		ActorID:  caller.UserID,
		Version:  r.Version,
		At:       r.CreatedAt,
	})
	return r, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update applies a whitelisted partial update under optimistic
// concurrency control. expectedVersion is mandatory; nil yields
// ErrMissingVersion before anything else is considered.
func (s *Service) Update(ctx context.Context, id ReportID, cmd UpdateCommand, expectedVersion *int64, caller Identity) (*Report, error) {
	stored, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Ownership: plain users only touch their own reports.
	if !caller.IsAdmin() && stored.OwnerID != caller.UserID {
		return nil, fmt.Errorf("update report %s: %w", id, ErrForbidden)
	}

	if err := CheckVersion(expectedVersion, stored.Version); err != nil {
		return nil, err
	}

	// Admin-only preconditions, checked before the gate ever runs.
	if cmd.SetsOverride() && !caller.IsAdmin() {
		return nil, fmt.Errorf("set budget override: %w", ErrForbidden)
	}
	if cmd.ChangesOwner(stored.OwnerID) && !caller.IsAdmin() {
		return nil, fmt.Errorf("change owner: %w", ErrForbidden)
	}

	// The gate sees the proposed state, not the stored state.
	proposed := stored.Clone()
	cmd.applyTo(proposed)
	if proposed.BudgetCap.IsNegative() {
		return nil, fmt.Errorf("cap %s: %w", proposed.BudgetCap, ErrInvalidBudgetCap)
	}
	decision := EvaluateGate(GateInput{
		CurrentStatus:  stored.Status,
		NextStatus:     proposed.Status,
		Entries:        proposed.Entries,
		BudgetCap:      proposed.BudgetCap,
		BudgetOverride: proposed.BudgetOverride,
	})
	if err := decision.Err(); err != nil {
		return nil, err
	}

	updated, err := s.store.CompareAndSwap(ctx, id, *expectedVersion, func(r *Report) error {
		cmd.applyTo(r)
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("report updated",
		zap.String("report_id", string(id)),
		zap.Int64("version", updated.Version))

	s.notifier.Notify(Event{
		Kind:     EventReportUpdated,
		ReportID: updated.ID,
		OwnerID:  updated.OwnerID,
		ActorID:  caller.UserID,
		Version:  updated.Version,
		At:       updated.UpdatedAt,
	})
	return updated, nil
}

// =============================================================================
// READS
// =============================================================================

// Get returns a snapshot if the caller may view it: owner, admin, or
// any grant holder.
func (s *Service) Get(ctx context.Context, id ReportID, caller Identity) (*Report, error) {
	r, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.CanView(caller) {
		return nil, fmt.Errorf("view report %s: %w", id, ErrForbidden)
	}
	return r, nil
}

// ListForCaller returns the reports visible to the caller: everything
// for admins, owned plus granted for everyone else.
func (s *Service) ListForCaller(ctx context.Context, caller Identity) ([]*Report, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin() {
		return all, nil
	}
	visible := make([]*Report, 0, len(all))
	for _, r := range all {
		if r.CanView(caller) {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// =============================================================================
// SIDE COLLECTIONS - Append-only, same CAS path
// =============================================================================

// AddComment appends a comment. Owner, admin, and holders of EDIT or
// COMMENT grants may comment; a VIEW grant may not.
func (s *Service) AddComment(ctx context.Context, id ReportID, expectedVersion *int64, caller Identity, body string) (*Report, error) {
	stored, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canComment(stored, caller) {
		return nil, fmt.Errorf("comment on report %s: %w", id, ErrForbidden)
	}
	if err := CheckVersion(expectedVersion, stored.Version); err != nil {
		return nil, err
	}

	updated, err := s.store.CompareAndSwap(ctx, id, *expectedVersion, func(r *Report) error {
		r.Comments = append(r.Comments, Comment{
			ID:        uuid.NewString(),
			AuthorID:  caller.UserID,
			Body:      body,
			CreatedAt: s.now(),
		})
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(Event{
		Kind:     EventCommentAdded,
		ReportID: updated.ID,
		OwnerID:  updated.OwnerID,
		ActorID:  caller.UserID,
		Version:  updated.Version,
		At:       updated.UpdatedAt,
	})
	return updated, nil
}

// AttachmentInput is the opaque metadata handed over by the upload
// collaborator.
type AttachmentInput struct {
	Name        string
	ContentType string
	SizeBytes   int64
	StorageKey  string
}

// AttachFile appends attachment metadata. Owner, admin, and EDIT grant
// holders may attach.
func (s *Service) AttachFile(ctx context.Context, id ReportID, expectedVersion *int64, caller Identity, in AttachmentInput) (*Report, error) {
	stored, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canEdit(stored, caller) {
		return nil, fmt.Errorf("attach to report %s: %w", id, ErrForbidden)
	}
	if err := CheckVersion(expectedVersion, stored.Version); err != nil {
		return nil, err
	}

	updated, err := s.store.CompareAndSwap(ctx, id, *expectedVersion, func(r *Report) error {
		r.Attachments = append(r.Attachments, Attachment{
			ID:          uuid.NewString(),
			Name:        in.Name,
			ContentType: in.ContentType,
			SizeBytes:   in.SizeBytes,
			StorageKey:  in.StorageKey,
			UploadedBy:  caller.UserID,
			CreatedAt:   s.now(),
		})
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(Event{
		Kind:     EventAttachmentAdded,
		ReportID: updated.ID,
		OwnerID:  updated.OwnerID,
		ActorID:  caller.UserID,
		Version:  updated.Version,
		At:       updated.UpdatedAt,
	})
	return updated, nil
}

func canComment(r *Report, caller Identity) bool {
	if caller.IsAdmin() || r.OwnerID == caller.UserID {
		return true
	}
	level, ok := r.GrantFor(caller.UserID)
	return ok && (level == AccessEdit || level == AccessComment)
}

func canEdit(r *Report, caller Identity) bool {
	if caller.IsAdmin() || r.OwnerID == caller.UserID {
		return true
	}
	level, ok := r.GrantFor(caller.UserID)
	return ok && level == AccessEdit
}
