/*
Package report provides the core expense-report aggregate engine.

PURPOSE:
  This package contains the domain types and algorithms for managing
  shared, versioned expense reports: the aggregate model, the optimistic
  concurrency guard, the budget gate on submission, and the read-side
  projection that shapes an aggregate into a client-facing view.

KEY CONCEPTS IN THIS FILE (types.go):
  - Report: The aggregate root (entries, comments, attachments, grants)
  - Entry: A single expense line item
  - AccessGrant: Non-owner access (view/edit/comment)
  - Identity: The already-authenticated caller (id + role)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Snapshots: Loads are snapshots; staleness is detected at write time
     via the version counter, never prevented with locks
  3. Type Safety: Strong typing for IDs prevents mixing report/user IDs
  4. Purity: Gate, guard, metrics, and view shaping are pure functions;
     only the Service performs side effects

USAGE:
  r := report.Report{
      Title:     "Q3 team offsite",
      OwnerID:   "user-123",
      BudgetCap: decimal.NewFromInt(2000),
      Status:    report.StatusDraft,
  }

SEE ALSO:
  - gate.go: The budget gate on DRAFT -> SUBMITTED
  - guard.go: Optimistic version checking
  - metrics.go: Derived read-only metrics
  - view.go: Filter/sort/paginate projection
  - service.go: The lifecycle controller (the only side-effecting part)
*/
package report

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ReportID string
type UserID string

// =============================================================================
// STATUS - Report lifecycle state
// =============================================================================

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
)

// ValidStatus reports whether s is one of the four lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// =============================================================================
// IDENTITY - The already-authenticated caller
// =============================================================================

// Role is decided at the edge. This package never evaluates credentials;
// it only consumes the facts it is handed.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type Identity struct {
	UserID UserID
	Role   Role
}

func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// =============================================================================
// ENTRY - A single expense line item
// =============================================================================

// Entry is an expense line item. Amount may be negative or zero: refunds
// and credits are recorded as signed amounts, and totals are signed sums.
type Entry struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`

	// IncurredAt drives chronological sorts and the trend metric.
	// Entries without a timestamp sort as earliest.
	IncurredAt *time.Time `json:"incurred_at,omitempty"`
}

// =============================================================================
// ACCESS GRANTS - Non-owner access
// =============================================================================

type AccessLevel string

const (
	AccessView    AccessLevel = "VIEW"
	AccessEdit    AccessLevel = "EDIT"
	AccessComment AccessLevel = "COMMENT"
)

type AccessGrant struct {
	UserID UserID      `json:"user_id"`
	Level  AccessLevel `json:"level"`
}

// =============================================================================
// SIDE COLLECTIONS - Append-only
// =============================================================================

type Comment struct {
	ID        string    `json:"id"`
	AuthorID  UserID    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is opaque metadata. Byte storage and signed URLs live in an
// external collaborator; the aggregate only records what was attached.
type Attachment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	StorageKey  string    `json:"storage_key,omitempty"`
	UploadedBy  UserID    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// =============================================================================
// REPORT - The aggregate root
// =============================================================================

// Report is one unit of consistency: the record and everything embedded
// in it. Version starts at 1 and increments by exactly 1 on every
// successful mutation; the store enforces this with compare-and-swap.
type Report struct {
	ID         ReportID `json:"id"`
	Title      string   `json:"title"`
	OwnerID    UserID   `json:"owner_id"`
	Department string   `json:"department,omitempty"`
	Status     Status   `json:"status"`

	BudgetCap      decimal.Decimal `json:"budget_cap"`
	BudgetOverride bool            `json:"budget_override"`

	// Entries keep insertion order; that order is canonical unless a
	// caller requests a different sort for a view.
	Entries      []Entry       `json:"entries"`
	AccessGrants []AccessGrant `json:"access_grants"`
	Comments     []Comment     `json:"comments"`
	Attachments  []Attachment  `json:"attachments"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Total returns the signed sum of entry amounts.
func (r *Report) Total() decimal.Decimal {
	return sumEntries(r.Entries)
}

func sumEntries(entries []Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total
}

// GrantFor returns the access level granted to userID, if any.
func (r *Report) GrantFor(userID UserID) (AccessLevel, bool) {
	for _, g := range r.AccessGrants {
		if g.UserID == userID {
			return g.Level, true
		}
	}
	return "", false
}

// CanView reports whether caller may read this aggregate: owner, admin,
// or any grant holder.
func (r *Report) CanView(caller Identity) bool {
	if caller.IsAdmin() || r.OwnerID == caller.UserID {
		return true
	}
	_, ok := r.GrantFor(caller.UserID)
	return ok
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// reach the persisted aggregate, and view shaping operates on clones so
// sorting never reorders stored entries.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	out := *r
	out.Entries = cloneEntries(r.Entries)
	out.AccessGrants = append([]AccessGrant(nil), r.AccessGrants...)
	out.Comments = append([]Comment(nil), r.Comments...)
	out.Attachments = append([]Attachment(nil), r.Attachments...)
	return &out
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e
		if e.IncurredAt != nil {
			t := *e.IncurredAt
			out[i].IncurredAt = &t
		}
	}
	return out
}
