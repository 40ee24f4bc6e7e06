/*
view.go - View shaping: filter, sort, paginate, compose

PURPOSE:
  Shapes a stored aggregate into the representation a caller asked for.
  Section selection, compact summaries, entry filtering, stable sorts,
  and pagination all happen here, on a read-only copy. Shaping never
  fails on well-typed input: out-of-range options are clamped.

SECTIONS:
  include selects from {entries, comments, metadata, metrics}; the
  default is all four. A section that is not included is ABSENT from
  the result, not emptied. The comments section carries both comments
  and attachments (the two append-only side collections); metadata
  carries timestamps, version, budget fields, and access grants.

COMPACT MODE:
  compact returns a flat summary (id, title, owner, department, status,
  metrics, metadata) regardless of include, and omits all collections.

ENTRY PIPELINE:
  filter (min amount, inclusive) -> stable sort -> paginate.
  Only the entries section goes through this pipeline; comments and
  attachments are returned whole.

PAGINATION:
  offset is a zero-based page index, limit a page size:
  slice = entries[offset*limit : offset*limit+limit]. Total always
  reports the filtered, pre-pagination count. Negative limit clamps
  to 1, negative offset to 0; limit 0 means no pagination.

SEE ALSO:
  - metrics.go: The metrics section
  - api/dto.go: Query-parameter parsing into ViewOptions
*/
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// OPTIONS
// =============================================================================

type Section string

const (
	SectionEntries  Section = "entries"
	SectionComments Section = "comments"
	SectionMetadata Section = "metadata"
	SectionMetrics  Section = "metrics"
)

type SortOrder string

const (
	SortNone       SortOrder = ""
	SortAmountDesc SortOrder = "amount_desc"
	SortAmountAsc  SortOrder = "amount_asc"
	SortDateDesc   SortOrder = "date_desc"
	SortDateAsc    SortOrder = "date_asc"
)

// ViewOptions control shaping. The zero value means: all sections, full
// view, insertion order, no filter, no pagination.
type ViewOptions struct {
	Include          []Section
	Compact          bool
	EntriesMinAmount *decimal.Decimal
	EntriesSort      SortOrder
	Offset           int
	Limit            int
}

func (o ViewOptions) includes(s Section) bool {
	if len(o.Include) == 0 {
		return true
	}
	for _, in := range o.Include {
		if in == s {
			return true
		}
	}
	return false
}

// =============================================================================
// VIEW MODEL
// =============================================================================

type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// ViewMetadata is the metadata section: record bookkeeping plus the
// budget configuration and grants.
type ViewMetadata struct {
	Version        int64           `json:"version"`
	BudgetCap      decimal.Decimal `json:"budget_cap"`
	BudgetOverride bool            `json:"budget_override"`
	AccessGrants   []AccessGrant   `json:"access_grants,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ViewModel is the shaped, read-only representation. Omitted sections
// are nil and absent from the serialized form.
type ViewModel struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	OwnerID    string `json:"owner_id"`
	Department string `json:"department,omitempty"`
	Status     Status `json:"status"`
	Compact    bool   `json:"compact,omitempty"`

	Metrics  *Metrics      `json:"metrics,omitempty"`
	Metadata *ViewMetadata `json:"metadata,omitempty"`

	Entries    []Entry     `json:"entries,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`

	Comments    []Comment    `json:"comments,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// =============================================================================
// SHAPING
// =============================================================================

// Shape builds the view a caller requested. The aggregate itself is
// never mutated; shaping operates on a clone.
func Shape(r *Report, opts ViewOptions) ViewModel {
	r = r.Clone()

	vm := ViewModel{
		ID:         string(r.ID),
		Title:      r.Title,
		OwnerID:    string(r.OwnerID),
		Department: r.Department,
		Status:     r.Status,
	}

	if opts.Compact {
		// Flat summary: metrics and metadata regardless of include,
		// collections omitted.
		vm.Compact = true
		m := ProjectMetrics(r.Entries, r.BudgetCap)
		vm.Metrics = &m
		md := metadataOf(r)
		md.AccessGrants = nil
		vm.Metadata = &md
		return vm
	}

	if opts.includes(SectionMetrics) {
		m := ProjectMetrics(r.Entries, r.BudgetCap)
		vm.Metrics = &m
	}
	if opts.includes(SectionMetadata) {
		md := metadataOf(r)
		vm.Metadata = &md
	}
	if opts.includes(SectionComments) {
		vm.Comments = r.Comments
		vm.Attachments = r.Attachments
	}
	if opts.includes(SectionEntries) {
		entries := filterEntries(r.Entries, opts.EntriesMinAmount)
		sortEntries(entries, opts.EntriesSort)
		page, pagination := paginateEntries(entries, opts.Offset, opts.Limit)
		vm.Entries = page
		vm.Pagination = &pagination
	}
	return vm
}

func metadataOf(r *Report) ViewMetadata {
	return ViewMetadata{
		Version:        r.Version,
		BudgetCap:      r.BudgetCap,
		BudgetOverride: r.BudgetOverride,
		AccessGrants:   r.AccessGrants,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// =============================================================================
// ENTRY PIPELINE - filter -> sort -> paginate
// =============================================================================

func filterEntries(entries []Entry, minAmount *decimal.Decimal) []Entry {
	if minAmount == nil {
		return entries
	}
	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Amount.GreaterThanOrEqual(*minAmount) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// sortEntries applies a stable sort in place. Entries without an
// IncurredAt timestamp sort as epoch zero for the date orderings.
func sortEntries(entries []Entry, order SortOrder) {
	switch order {
	case SortAmountDesc:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Amount.GreaterThan(entries[j].Amount)
		})
	case SortAmountAsc:
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Amount.LessThan(entries[j].Amount)
		})
	case SortDateDesc:
		sort.SliceStable(entries, func(i, j int) bool {
			return incurredOrEpoch(entries[i]).After(incurredOrEpoch(entries[j]))
		})
	case SortDateAsc:
		sort.SliceStable(entries, func(i, j int) bool {
			return incurredOrEpoch(entries[i]).Before(incurredOrEpoch(entries[j]))
		})
	}
}

func incurredOrEpoch(e Entry) time.Time {
	if e.IncurredAt == nil {
		return time.Unix(0, 0).UTC()
	}
	return *e.IncurredAt
}

// paginateEntries slices entries[offset*limit : offset*limit+limit],
// clamping malformed values rather than rejecting them.
func paginateEntries(entries []Entry, offset, limit int) ([]Entry, Pagination) {
	total := len(entries)

	if offset < 0 {
		offset = 0
	}
	if limit == 0 {
		return entries, Pagination{Offset: 0, Limit: 0, Total: total}
	}
	if limit < 0 {
		limit = 1
	}

	// The page arithmetic is guarded against int overflow: a page index
	// past the collection is an empty page, however large the numbers.
	start := total
	if offset <= total/limit {
		start = offset * limit
	}
	end := start + limit
	if end > total || end < start {
		end = total
	}
	return entries[start:end], Pagination{Offset: offset, Limit: limit, Total: total}
}
