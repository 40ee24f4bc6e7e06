package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/expense-engine/report"
	memstore "github.com/warp/expense-engine/report/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	alice = report.Identity{UserID: "alice", Role: report.RoleUser}
	bob   = report.Identity{UserID: "bob", Role: report.RoleUser}
	root  = report.Identity{UserID: "root", Role: report.RoleAdmin}
)

type capturedEvents struct {
	events []report.Event
}

func (c *capturedEvents) Notify(ev report.Event) { c.events = append(c.events, ev) }

func (c *capturedEvents) last(t *testing.T) report.Event {
	t.Helper()
	require.NotEmpty(t, c.events, "expected at least one event")
	return c.events[len(c.events)-1]
}

func newTestService() (*report.Service, *memstore.Memory, *capturedEvents) {
	st := memstore.NewMemory()
	ev := &capturedEvents{}
	svc := report.NewService(st, ev, nil).WithClock(func() time.Time {
		return time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
	})
	return svc, st, ev
}

func mustCreate(t *testing.T, svc *report.Service, cmd report.CreateCommand, caller report.Identity) *report.Report {
	t.Helper()
	r, err := svc.Create(context.Background(), cmd, caller)
	require.NoError(t, err)
	return r
}

func draftCommand(cap int64, amounts ...int64) report.CreateCommand {
	return report.CreateCommand{
		Title:     "lunch & travel",
		BudgetCap: amount(cap),
		Entries:   entries(amounts...),
	}
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_Defaults(t *testing.T) {
	svc, _, ev := newTestService()

	r := mustCreate(t, svc, draftCommand(2000, 600, 800, 300), alice)

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, report.StatusDraft, r.Status)
	assert.Equal(t, report.UserID("alice"), r.OwnerID, "owner defaults to the caller")
	assert.Equal(t, int64(1), r.Version)
	for _, e := range r.Entries {
		assert.NotEmpty(t, e.ID, "entry ids are assigned at creation")
	}

	event := ev.last(t)
	assert.Equal(t, report.EventReportCreated, event.Kind)
	assert.Equal(t, r.ID, event.ReportID)
	assert.Equal(t, r.OwnerID, event.OwnerID)
}

func TestCreate_DirectlyIntoSubmitted_RunsGate(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// Under cap: allowed.
	cmd := draftCommand(2000, 600, 800, 300)
	cmd.Status = report.StatusSubmitted
	r, err := svc.Create(ctx, cmd, alice)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSubmitted, r.Status)

	// Over cap: the same gate denial as at update time.
	over := draftCommand(1000, 600, 800, 300)
	over.Status = report.StatusSubmitted
	_, err = svc.Create(ctx, over, alice)
	assert.ErrorIs(t, err, report.ErrBudgetExceeded)
}

func TestCreate_OverrideIsAdminOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cmd := draftCommand(1000, 600, 800, 300)
	cmd.Status = report.StatusSubmitted
	cmd.BudgetOverride = true

	// Non-admin: Forbidden before the gate ever runs.
	_, err := svc.Create(ctx, cmd, alice)
	assert.ErrorIs(t, err, report.ErrForbidden)

	// Admin: override skips the numeric check entirely.
	r, err := svc.Create(ctx, cmd, root)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSubmitted, r.Status)
	assert.True(t, r.BudgetOverride)
}

func TestCreate_ForAnotherOwner(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cmd := draftCommand(100)
	cmd.OwnerID = "bob"

	_, err := svc.Create(ctx, cmd, alice)
	assert.ErrorIs(t, err, report.ErrForbidden)

	r, err := svc.Create(ctx, cmd, root)
	require.NoError(t, err)
	assert.Equal(t, report.UserID("bob"), r.OwnerID)
}

func TestCreate_NegativeCapRejected(t *testing.T) {
	svc, _, _ := newTestService()

	cmd := draftCommand(100)
	cmd.BudgetCap = amount(-100)

	_, err := svc.Create(context.Background(), cmd, alice)
	assert.ErrorIs(t, err, report.ErrInvalidBudgetCap)
}

// =============================================================================
// UPDATE - Version guard
// =============================================================================

func TestUpdate_IncrementsVersionByExactlyOne(t *testing.T) {
	svc, _, ev := newTestService()
	ctx := context.Background()
	r := mustCreate(t, svc, draftCommand(2000, 100), alice)

	title := "updated title"
	updated, err := svc.Update(ctx, r.ID, report.UpdateCommand{Title: &title}, ptr(1), alice)
	require.NoError(t, err)

	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "updated title", updated.Title)
	assert.Equal(t, report.EventReportUpdated, ev.last(t).Kind)

	// And again, from the new version.
	updated, err = svc.Update(ctx, r.ID, report.UpdateCommand{Title: &title}, ptr(2), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.Version)
}

func TestUpdate_MissingVersion_Rejected(t *testing.T) {
	svc, _, _ := newTestService()
	r := mustCreate(t, svc, draftCommand(2000, 100), alice)

	title := "x"
	_, err := svc.Update(context.Background(), r.ID, report.UpdateCommand{Title: &title}, nil, alice)
	assert.ErrorIs(t, err, report.ErrMissingVersion)
}

func TestUpdate_StaleVersion_ConflictAndZeroWrites(t *testing.T) {
	svc, st, ev := newTestService()
	ctx := context.Background()
	r := mustCreate(t, svc, draftCommand(2000, 100), alice)

	// Bump to version 2 behind the scenes.
	title := "second writer"
	_, err := svc.Update(ctx, r.ID, report.UpdateCommand{Title: &title}, ptr(1), alice)
	require.NoError(t, err)
	eventsBefore := len(ev.events)

	// GIVEN: expectedVersion 1 against stored version 2
	stale := "first writer, stale"
	_, err = svc.Update(ctx, r.ID, report.UpdateCommand{Title: &stale}, ptr(1), alice)
	assert.ErrorIs(t, err, report.ErrVersionConflict)

	// THEN: The stored aggregate is untouched and no event fired.
	stored, err := st.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, "second writer", stored.Title)
	assert.Len(t, ev.events, eventsBefore)
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	title := "x"
	_, err := svc.Update(context.Background(), "missing", report.UpdateCommand{Title: &title}, ptr(1), alice)
	assert.ErrorIs(t, err, report.ErrNotFound)
}

// =============================================================================
// UPDATE - Ownership and admin-only fields
// =============================================================================

func TestUpdate_OwnershipEnforced(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	r := mustCreate(t, svc, draftCommand(2000, 100), alice)

	title := "not yours"
	_, err := svc.Update(ctx, r.ID, report.UpdateCommand{Title: &title}, ptr(1), bob)
	assert.ErrorIs(t, err, report.ErrForbidden)

	// Admins update anyone's report.
	updated, err := svc.Update(ctx, r.ID, report.UpdateCommand{Title: &title}, ptr(1), root)
	require.NoError(t, err)
	assert.Equal(t, "not yours", updated.Title)
}

func TestUpdate_OverrideSetByNonAdmin_Forbidden(t *testing.T) {
	svc, _, _ := newTestService()
	r := mustCreate(t, svc, draftCommand(2000, 100), alice)

	on := true
	_, err := svc.Update(context.Background(), r.ID, report.UpdateCommand{BudgetOverride: &on}, ptr(1), alice)
	assert.ErrorIs(t, err, report.ErrForbidden)

	// Turning it OFF needs no privilege.
	off := false
	_, err = svc.Update(context.Background(), r.ID, report.UpdateCommand{BudgetOverride: &off}, ptr(1), alice)
	assert.NoError(t, err)
}

func TestUpdate_OwnerChangeIsAdminOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	r := mustCreate(t, svc, draftCommand(2000, 100), alice)

	newOwner := report.UserID("bob")
	_, err := svc.Update(ctx, r.ID, report.UpdateCommand{OwnerID: &newOwner}, ptr(1), alice)
	assert.ErrorIs(t, err, report.ErrForbidden)

	updated, err := svc.Update(ctx, r.ID, report.UpdateCommand{OwnerID: &newOwner}, ptr(1), root)
	require.NoError(t, err)
	assert.Equal(t, newOwner, updated.OwnerID)
}

// =============================================================================
// UPDATE - Gate against post-merge state
// =============================================================================

func TestUpdate_SubmitRunsGateOnProposedState(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	// Stored draft is comfortably under cap.
	r := mustCreate(t, svc, draftCommand(1000, 100), alice)

	// Proposed state swaps in entries over the cap AND submits: denied
	// against the merged values, not the stored ones.
	big := entries(600, 800, 300)
	submitted := report.StatusSubmitted
	_, err := svc.Update(ctx, r.ID, report.UpdateCommand{
		Entries: &big,
		Status:  &submitted,
	}, ptr(1), alice)
	assert.ErrorIs(t, err, report.ErrBudgetExceeded)

	// The reverse: stored entries are over cap, the same update shrinks
	// them below it, so submission passes.
	r2 := mustCreate(t, svc, draftCommand(1000, 600, 800, 300), alice)
	small := entries(100)
	updated, err := svc.Update(ctx, r2.ID, report.UpdateCommand{
		Entries: &small,
		Status:  &submitted,
	}, ptr(1), alice)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSubmitted, updated.Status)
}

func TestUpdate_GateScope_EditingSubmittedNeverFires(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cmd := draftCommand(2000, 100)
	cmd.Status = report.StatusSubmitted
	r := mustCreate(t, svc, cmd, alice)

	// Editing entries on a SUBMITTED report to any total never yields
	// BudgetExceeded.
	huge := entries(100000)
	updated, err := svc.Update(ctx, r.ID, report.UpdateCommand{Entries: &huge}, ptr(1), alice)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSubmitted, updated.Status)

	// Nor does SUBMITTED -> APPROVED.
	approved := report.StatusApproved
	_, err = svc.Update(ctx, r.ID, report.UpdateCommand{Status: &approved}, ptr(2), alice)
	assert.NoError(t, err)
}

func TestUpdate_NegativeCapRejected(t *testing.T) {
	svc, st, _ := newTestService()
	ctx := context.Background()
	r := mustCreate(t, svc, draftCommand(2000, 100), alice)

	// A negative cap would silently fail every submission; it is
	// rejected at the boundary with zero writes.
	bad := amount(-1)
	_, err := svc.Update(ctx, r.ID, report.UpdateCommand{BudgetCap: &bad}, ptr(1), alice)
	assert.ErrorIs(t, err, report.ErrInvalidBudgetCap)

	stored, err := st.Load(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.True(t, stored.BudgetCap.Equal(amount(2000)))
}

func TestUpdate_MergesOnlyWhitelistedFields(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	r := mustCreate(t, svc, draftCommand(2000, 600, 800), alice)

	title := "only the title"
	updated, err := svc.Update(ctx, r.ID, report.UpdateCommand{Title: &title}, ptr(1), alice)
	require.NoError(t, err)

	assert.Equal(t, "only the title", updated.Title)
	assert.Len(t, updated.Entries, 2, "unset fields keep stored values")
	assert.True(t, updated.BudgetCap.Equal(amount(2000)))
	assert.Equal(t, report.StatusDraft, updated.Status)
}

// =============================================================================
// READS
// =============================================================================

func TestGet_AccessFacts(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	cmd := draftCommand(2000, 100)
	cmd.AccessGrants = []report.AccessGrant{{UserID: "bob", Level: report.AccessView}}
	r := mustCreate(t, svc, cmd, alice)

	for _, caller := range []report.Identity{alice, bob, root} {
		_, err := svc.Get(ctx, r.ID, caller)
		assert.NoError(t, err, "caller %s", caller.UserID)
	}

	_, err := svc.Get(ctx, r.ID, report.Identity{UserID: "stranger", Role: report.RoleUser})
	assert.ErrorIs(t, err, report.ErrForbidden)
}

func TestListForCaller(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	mine := mustCreate(t, svc, draftCommand(100), alice)
	granted := report.CreateCommand{
		Title:        "bob's, shared with alice",
		OwnerID:      "bob",
		BudgetCap:    amount(100),
		AccessGrants: []report.AccessGrant{{UserID: "alice", Level: report.AccessComment}},
	}
	shared, err := svc.Create(ctx, granted, root)
	require.NoError(t, err)
	private := mustCreate(t, svc, report.CreateCommand{Title: "private", OwnerID: "bob", BudgetCap: amount(100)}, root)

	visible, err := svc.ListForCaller(ctx, alice)
	require.NoError(t, err)
	ids := map[report.ReportID]bool{}
	for _, r := range visible {
		ids[r.ID] = true
	}
	assert.True(t, ids[mine.ID])
	assert.True(t, ids[shared.ID])
	assert.False(t, ids[private.ID])

	all, err := svc.ListForCaller(ctx, root)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// SIDE COLLECTIONS
// =============================================================================

func TestAddComment_GrantLevels(t *testing.T) {
	svc, _, ev := newTestService()
	ctx := context.Background()

	cmd := draftCommand(100)
	cmd.AccessGrants = []report.AccessGrant{
		{UserID: "bob", Level: report.AccessComment},
		{UserID: "carol", Level: report.AccessView},
	}
	r := mustCreate(t, svc, cmd, alice)

	// COMMENT grant may comment.
	updated, err := svc.AddComment(ctx, r.ID, ptr(1), bob, "nice lunch")
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)
	assert.Equal(t, report.UserID("bob"), updated.Comments[0].AuthorID)
	assert.Equal(t, int64(2), updated.Version, "comments ride the same CAS path")
	assert.Equal(t, report.EventCommentAdded, ev.last(t).Kind)

	// VIEW grant may not.
	carol := report.Identity{UserID: "carol", Role: report.RoleUser}
	_, err = svc.AddComment(ctx, r.ID, ptr(2), carol, "sneaky")
	assert.ErrorIs(t, err, report.ErrForbidden)

	// Comments need concurrency context too.
	_, err = svc.AddComment(ctx, r.ID, nil, alice, "no version")
	assert.ErrorIs(t, err, report.ErrMissingVersion)
}

func TestAttachFile_RequiresEditAccess(t *testing.T) {
	svc, _, ev := newTestService()
	ctx := context.Background()

	cmd := draftCommand(100)
	cmd.AccessGrants = []report.AccessGrant{
		{UserID: "bob", Level: report.AccessEdit},
		{UserID: "carol", Level: report.AccessComment},
	}
	r := mustCreate(t, svc, cmd, alice)

	updated, err := svc.AttachFile(ctx, r.ID, ptr(1), bob, report.AttachmentInput{
		Name:       "receipt.pdf",
		StorageKey: "s3://bucket/receipt.pdf",
	})
	require.NoError(t, err)
	require.Len(t, updated.Attachments, 1)
	assert.Equal(t, "receipt.pdf", updated.Attachments[0].Name)
	assert.Equal(t, report.EventAttachmentAdded, ev.last(t).Kind)

	carol := report.Identity{UserID: "carol", Role: report.RoleUser}
	_, err = svc.AttachFile(ctx, r.ID, ptr(2), carol, report.AttachmentInput{Name: "x"})
	assert.ErrorIs(t, err, report.ErrForbidden)
}
