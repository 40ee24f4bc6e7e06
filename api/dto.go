/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.
  Domain collection types (entries, grants) carry their own JSON tags,
  so request bodies decode straight into them; the DTOs here add the
  request-shaped envelope (optional fields, expected version).

NAMING CONVENTION:
  - *Request: Request body types from clients
  - errorResponse: Uniform error envelope

EXPECTED VERSION:
  Mutating requests carry the expected aggregate version either in the
  body ("expected_version") or in the If-Match header. The header wins
  when both are present.

VALIDATION:
  Structural validation (status strings, sort orders) happens in the
  handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - report/view.go: ViewModel, the response shape for reads
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/warp/expense-engine/report"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateReportRequest is the request to create a report.
type CreateReportRequest struct {
	Title          string               `json:"title"`
	OwnerID        string               `json:"owner_id,omitempty"`
	Department     string               `json:"department,omitempty"`
	BudgetCap      decimal.Decimal      `json:"budget_cap"`
	BudgetOverride bool                 `json:"budget_override,omitempty"`
	Entries        []report.Entry       `json:"entries,omitempty"`
	AccessGrants   []report.AccessGrant `json:"access_grants,omitempty"`
	Status         string               `json:"status,omitempty"`
}

// UpdateReportRequest is a partial update; absent fields leave the
// stored values alone.
type UpdateReportRequest struct {
	Title          *string               `json:"title,omitempty"`
	Department     *string               `json:"department,omitempty"`
	BudgetCap      *decimal.Decimal      `json:"budget_cap,omitempty"`
	BudgetOverride *bool                 `json:"budget_override,omitempty"`
	Entries        *[]report.Entry       `json:"entries,omitempty"`
	AccessGrants   *[]report.AccessGrant `json:"access_grants,omitempty"`
	Status         *string               `json:"status,omitempty"`
	OwnerID        *string               `json:"owner_id,omitempty"`

	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// AddCommentRequest appends a comment.
type AddCommentRequest struct {
	Body            string `json:"body"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// AddAttachmentRequest appends attachment metadata. The bytes live with
// the upload collaborator; only the reference is recorded here.
type AddAttachmentRequest struct {
	Name            string `json:"name"`
	ContentType     string `json:"content_type,omitempty"`
	SizeBytes       int64  `json:"size_bytes,omitempty"`
	StorageKey      string `json:"storage_key,omitempty"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`

	// Populated for budget gate denials so the caller can decide to
	// request an override.
	Total *decimal.Decimal `json:"total,omitempty"`
	Cap   *decimal.Decimal `json:"cap,omitempty"`
}
