package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/expense-engine/report"
	"github.com/warp/expense-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fixture() *report.Report {
	incurred := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)
	return &report.Report{
		ID:         "rep-1",
		Title:      "conference travel",
		OwnerID:    "alice",
		Department: "eng",
		Status:     report.StatusDraft,
		BudgetCap:  decimal.RequireFromString("1500.50"),
		Entries: []report.Entry{
			{ID: "e1", Amount: decimal.RequireFromString("120.25"), Description: "taxi", Category: "transport", IncurredAt: &incurred},
			{ID: "e2", Amount: decimal.NewFromInt(-20), Description: "refund"},
		},
		AccessGrants: []report.AccessGrant{{UserID: "bob", Level: report.AccessView}},
		Comments:     []report.Comment{{ID: "c1", AuthorID: "bob", Body: "ok", CreatedAt: now}},
		Attachments:  []report.Attachment{{ID: "a1", Name: "r.pdf", UploadedBy: "alice", CreatedAt: now}},
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	original := fixture()

	require.NoError(t, s.Create(ctx, original))

	loaded, err := s.Load(ctx, "rep-1")
	require.NoError(t, err)

	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.Title, loaded.Title)
	assert.Equal(t, original.OwnerID, loaded.OwnerID)
	assert.Equal(t, original.Status, loaded.Status)
	assert.True(t, loaded.BudgetCap.Equal(original.BudgetCap), "decimal cap survives as text")
	require.Len(t, loaded.Entries, 2)
	assert.True(t, loaded.Entries[0].Amount.Equal(original.Entries[0].Amount))
	require.NotNil(t, loaded.Entries[0].IncurredAt)
	assert.True(t, loaded.Entries[0].IncurredAt.Equal(*original.Entries[0].IncurredAt))
	assert.True(t, loaded.Entries[1].Amount.IsNegative())
	assert.Len(t, loaded.AccessGrants, 1)
	assert.Len(t, loaded.Comments, 1)
	assert.Len(t, loaded.Attachments, 1)
	assert.Equal(t, int64(1), loaded.Version)
	assert.True(t, loaded.CreatedAt.Equal(original.CreatedAt))
}

func TestSQLite_LoadMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Load(context.Background(), "ghost")
	assert.ErrorIs(t, err, report.ErrNotFound)
}

func TestSQLite_CompareAndSwap(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, fixture()))

	updated, err := s.CompareAndSwap(ctx, "rep-1", 1, func(r *report.Report) error {
		r.Status = report.StatusSubmitted
		r.UpdatedAt = r.UpdatedAt.Add(time.Minute)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, report.StatusSubmitted, updated.Status)

	// Stale swap: conflict with detail, stored row untouched.
	_, err = s.CompareAndSwap(ctx, "rep-1", 1, func(r *report.Report) error {
		r.Status = report.StatusApproved
		return nil
	})
	var conflict *report.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(2), conflict.Stored)

	stored, err := s.Load(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, report.StatusSubmitted, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestSQLite_CompareAndSwap_MutatorErrorRollsBack(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, fixture()))

	_, err := s.CompareAndSwap(ctx, "rep-1", 1, func(r *report.Report) error {
		r.Title = "never lands"
		return report.ErrForbidden // any error aborts
	})
	assert.ErrorIs(t, err, report.ErrForbidden)

	stored, err := s.Load(ctx, "rep-1")
	require.NoError(t, err)
	assert.Equal(t, "conference travel", stored.Title)
	assert.Equal(t, int64(1), stored.Version)
}

func TestSQLite_List(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	first := fixture()
	require.NoError(t, s.Create(ctx, first))

	second := fixture()
	second.ID = "rep-2"
	second.CreatedAt = second.CreatedAt.Add(time.Hour)
	require.NoError(t, s.Create(ctx, second))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, report.ReportID("rep-1"), all[0].ID, "ordered by created_at")
	assert.Equal(t, report.ReportID("rep-2"), all[1].ID)
}
