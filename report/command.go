/*
command.go - Typed mutation commands

PURPOSE:
  Explicit, whitelisted update commands instead of loose field bags.
  An UpdateCommand is a tagged set of optional fields; only the fields
  listed here can ever reach the aggregate, so the service cannot
  accidentally apply caller-supplied fields outside the whitelist.

WHITELIST:
  title, department, budgetCap, budgetOverride, entries, accessGrants,
  status - plus ownerId, which merges only for administrators (the
  service rejects it for everyone else before the merge runs).

MERGE SEMANTICS:
  nil field  -> stored value kept
  set field  -> stored value replaced wholesale (entries and grants are
                replaced as collections, not element-merged)

SEE ALSO:
  - service.go: Validates preconditions, then merges onto a clone
*/
package report

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CREATE COMMAND
// =============================================================================

// CreateCommand carries everything needed to build a new aggregate at
// version 1. Status defaults to DRAFT; a requested SUBMITTED status is
// subject to the budget gate against the as-constructed values.
type CreateCommand struct {
	Title          string
	OwnerID        UserID
	Department     string
	BudgetCap      decimal.Decimal
	BudgetOverride bool
	Entries        []Entry
	AccessGrants   []AccessGrant
	Status         Status
}

// =============================================================================
// UPDATE COMMAND - The whitelisted partial update
// =============================================================================

// UpdateCommand is a partial update. A nil field means "leave the
// stored value alone"; a set field replaces it.
type UpdateCommand struct {
	Title          *string
	Department     *string
	BudgetCap      *decimal.Decimal
	BudgetOverride *bool
	Entries        *[]Entry
	AccessGrants   *[]AccessGrant
	Status         *Status

	// OwnerID merges only for administrators.
	OwnerID *UserID
}

// SetsOverride reports whether the command attempts to turn the budget
// override ON. Turning it off needs no privilege.
func (c UpdateCommand) SetsOverride() bool {
	return c.BudgetOverride != nil && *c.BudgetOverride
}

// ChangesOwner reports whether the command would move ownership.
func (c UpdateCommand) ChangesOwner(current UserID) bool {
	return c.OwnerID != nil && *c.OwnerID != current
}

// applyTo merges the set fields into r. r is a clone owned by the
// caller; nothing here touches stored state.
func (c UpdateCommand) applyTo(r *Report) {
	if c.Title != nil {
		r.Title = *c.Title
	}
	if c.Department != nil {
		r.Department = *c.Department
	}
	if c.BudgetCap != nil {
		r.BudgetCap = *c.BudgetCap
	}
	if c.BudgetOverride != nil {
		r.BudgetOverride = *c.BudgetOverride
	}
	if c.Entries != nil {
		r.Entries = cloneEntries(*c.Entries)
	}
	if c.AccessGrants != nil {
		r.AccessGrants = append([]AccessGrant(nil), (*c.AccessGrants)...)
	}
	if c.Status != nil {
		r.Status = *c.Status
	}
	if c.OwnerID != nil {
		r.OwnerID = *c.OwnerID
	}
}
