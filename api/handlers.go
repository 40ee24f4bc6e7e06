/*
handlers.go - HTTP API handlers for the expense report engine

PURPOSE:
  Exposes the report lifecycle controller via REST. Handles HTTP
  request/response, JSON serialization, identity extraction, and view
  option parsing, then delegates to the domain service.

ENDPOINTS:
  Reports:
    POST   /api/reports                   Create report
    GET    /api/reports                   List visible reports (compact views)
    GET    /api/reports/{id}              Shaped view (options via query)
    PATCH  /api/reports/{id}              Partial update (OCC)

  Side collections:
    POST   /api/reports/{id}/comments     Append comment
    POST   /api/reports/{id}/attachments  Append attachment metadata

  Health:
    GET    /api/healthz

IDENTITY:
  Callers arrive already authenticated; the edge in front of this
  service verifies credentials and forwards X-Caller-Id and
  X-Caller-Role. Requests without a caller id are rejected with 401.

ERROR HANDLING:
  Business-rule denials arrive as error values and map to status codes:
  - 404: NotFound
  - 403: Forbidden
  - 409: VersionConflict (caller re-reads and retries)
  - 428: MissingVersion (no concurrency context supplied)
  - 422: BudgetExceeded (with computed total and cap)
  - 400: Malformed JSON / invalid status / negative budget cap
  - 500: Everything else

VIEW OPTIONS (query parameters on GET /api/reports/{id}):
  include     comma-separated sections (entries,comments,metadata,metrics)
  compact     flat summary
  min_amount  inclusive lower bound on entry amounts
  sort        amount_desc | amount_asc | date_desc | date_asc
  offset      zero-based page index
  limit       page size
  Malformed values are clamped or ignored, never rejected.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - report/errors.go: The error kinds mapped here
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/expense-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *report.Service
	Log     *zap.Logger
}

// NewHandler creates a new handler around the lifecycle controller.
func NewHandler(svc *report.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Service: svc, Log: log}
}

// =============================================================================
// REPORT LIFECYCLE
// =============================================================================

func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid JSON body")
		return
	}

	status := report.Status(req.Status)
	if req.Status != "" && !report.ValidStatus(status) {
		h.writeBadRequest(w, "invalid status: "+req.Status)
		return
	}

	created, err := h.Service.Create(r.Context(), report.CreateCommand{
		Title:          req.Title,
		OwnerID:        report.UserID(req.OwnerID),
		Department:     req.Department,
		BudgetCap:      req.BudgetCap,
		BudgetOverride: req.BudgetOverride,
		Entries:        req.Entries,
		AccessGrants:   req.AccessGrants,
		Status:         status,
	}, caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := report.ReportID(chi.URLParam(r, "id"))

	var req UpdateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid JSON body")
		return
	}

	var status *report.Status
	if req.Status != nil {
		st := report.Status(*req.Status)
		if !report.ValidStatus(st) {
			h.writeBadRequest(w, "invalid status: "+*req.Status)
			return
		}
		status = &st
	}
	var ownerID *report.UserID
	if req.OwnerID != nil {
		uid := report.UserID(*req.OwnerID)
		ownerID = &uid
	}

	updated, err := h.Service.Update(r.Context(), id, report.UpdateCommand{
		Title:          req.Title,
		Department:     req.Department,
		BudgetCap:      req.BudgetCap,
		BudgetOverride: req.BudgetOverride,
		Entries:        req.Entries,
		AccessGrants:   req.AccessGrants,
		Status:         status,
		OwnerID:        ownerID,
	}, expectedVersion(r, req.ExpectedVersion), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// =============================================================================
// READS
// =============================================================================

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := report.ReportID(chi.URLParam(r, "id"))

	rep, err := h.Service.Get(r.Context(), id, caller)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report.Shape(rep, parseViewOptions(r)))
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}

	reports, err := h.Service.ListForCaller(r.Context(), caller)
	if err != nil {
		h.writeError(w, err)
		return
	}

	views := make([]report.ViewModel, 0, len(reports))
	for _, rep := range reports {
		views = append(views, report.Shape(rep, report.ViewOptions{Compact: true}))
	}
	h.writeJSON(w, http.StatusOK, views)
}

// =============================================================================
// SIDE COLLECTIONS
// =============================================================================

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := report.ReportID(chi.URLParam(r, "id"))

	var req AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		h.writeBadRequest(w, "comment body is required")
		return
	}

	updated, err := h.Service.AddComment(r.Context(), id, expectedVersion(r, req.ExpectedVersion), caller, req.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, updated)
}

func (h *Handler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(w, r)
	if !ok {
		return
	}
	id := report.ReportID(chi.URLParam(r, "id"))

	var req AddAttachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		h.writeBadRequest(w, "attachment name is required")
		return
	}

	updated, err := h.Service.AttachFile(r.Context(), id, expectedVersion(r, req.ExpectedVersion), caller, report.AttachmentInput{
		Name:        req.Name,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		StorageKey:  req.StorageKey,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, updated)
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// IDENTITY & VERSION EXTRACTION
// =============================================================================

// identity pulls the already-verified caller from the forwarded
// headers. This service never parses credentials.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (report.Identity, bool) {
	callerID := r.Header.Get("X-Caller-Id")
	if callerID == "" {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Error: "missing X-Caller-Id header",
			Kind:  "unauthenticated",
		})
		return report.Identity{}, false
	}

	role := report.RoleUser
	if strings.EqualFold(r.Header.Get("X-Caller-Role"), string(report.RoleAdmin)) {
		role = report.RoleAdmin
	}
	return report.Identity{UserID: report.UserID(callerID), Role: role}, true
}

// expectedVersion resolves the concurrency context: If-Match header
// first, then the body field. Absence is the service's call to reject.
func expectedVersion(r *http.Request, fromBody *int64) *int64 {
	if etag := strings.Trim(r.Header.Get("If-Match"), `"`); etag != "" {
		if v, err := strconv.ParseInt(etag, 10, 64); err == nil {
			return &v
		}
	}
	return fromBody
}

// =============================================================================
// VIEW OPTION PARSING - Clamp, never reject
// =============================================================================

func parseViewOptions(r *http.Request) report.ViewOptions {
	q := r.URL.Query()
	opts := report.ViewOptions{}

	if include := q.Get("include"); include != "" {
		for _, name := range strings.Split(include, ",") {
			switch report.Section(strings.TrimSpace(name)) {
			case report.SectionEntries:
				opts.Include = append(opts.Include, report.SectionEntries)
			case report.SectionComments:
				opts.Include = append(opts.Include, report.SectionComments)
			case report.SectionMetadata:
				opts.Include = append(opts.Include, report.SectionMetadata)
			case report.SectionMetrics:
				opts.Include = append(opts.Include, report.SectionMetrics)
			}
		}
	}

	opts.Compact = q.Get("compact") == "true" || q.Get("compact") == "1"

	if raw := q.Get("min_amount"); raw != "" {
		if min, err := decimal.NewFromString(raw); err == nil {
			opts.EntriesMinAmount = &min
		}
	}

	switch report.SortOrder(q.Get("sort")) {
	case report.SortAmountDesc:
		opts.EntriesSort = report.SortAmountDesc
	case report.SortAmountAsc:
		opts.EntriesSort = report.SortAmountAsc
	case report.SortDateDesc:
		opts.EntriesSort = report.SortDateDesc
	case report.SortDateAsc:
		opts.EntriesSort = report.SortDateAsc
	}

	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		opts.Offset = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		opts.Limit = v
	}
	return opts
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Log.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: "bad_request"})
}

// writeError maps domain error kinds to HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var exceeded *report.BudgetExceededError
	switch {
	case report.IsNotFound(err):
		h.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found"})
	case errors.Is(err, report.ErrForbidden):
		h.writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Kind: "forbidden"})
	case errors.Is(err, report.ErrMissingVersion):
		h.writeJSON(w, http.StatusPreconditionRequired, errorResponse{Error: err.Error(), Kind: "missing_version"})
	case errors.Is(err, report.ErrVersionConflict):
		h.writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "version_conflict"})
	case errors.Is(err, report.ErrInvalidBudgetCap):
		h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
	case errors.As(err, &exceeded):
		h.writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: err.Error(),
			Kind:  "budget_exceeded",
			Total: &exceeded.Total,
			Cap:   &exceeded.Cap,
		})
	default:
		h.Log.Error("internal error", zap.Error(err))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: "internal"})
	}
}
