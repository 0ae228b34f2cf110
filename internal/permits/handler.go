package permits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/platform/httpx"
	"github.com/gatepass-hq/gatepass/internal/shared"
)

const dateLayout = "2006-01-02"

// PermitService defines the lifecycle operations used by the handler.
type PermitService interface {
	Submit(ctx context.Context, requester org.Employee, input SubmitInput) (Permit, error)
	Decide(ctx context.Context, permitID uuid.UUID, approver org.Employee, outcome Outcome, notes string) (Permit, error)
	Get(ctx context.Context, viewer org.Employee, id uuid.UUID) (Permit, error)
	ListVisible(ctx context.Context, viewer org.Employee, filters ListFilters, page, perPage int) ([]Permit, shared.Pagination, error)
	DecisionHistory(ctx context.Context, viewer org.Employee, page, perPage int) ([]Decision, shared.Pagination, error)
	StatsFor(ctx context.Context, viewer org.Employee) (map[string]int, error)
}

// Auditor records actions into the audit trail.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyGuard claims submission keys so client retries do not
// create duplicate permits. A nil guard disables the check.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

// Handler coordinates HTTP requests for exit permits.
type Handler struct {
	logger  *slog.Logger
	service PermitService
	audit   Auditor
	idem    IdempotencyGuard
}

// NewHandler constructs the permits HTTP handler.
func NewHandler(logger *slog.Logger, service PermitService, audit Auditor, idem IdempotencyGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, audit: audit, idem: idem}
}

type submitRequest struct {
	DepartmentID int64  `json:"department_id"`
	Date         string `json:"date"`
	ExitTime     string `json:"exit_time"`
	ReturnTime   string `json:"return_time"`
	Reason       string `json:"reason"`
	Destination  string `json:"destination"`
}

type decisionRequest struct {
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

type listResponse struct {
	Items      []Permit          `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

type decisionListResponse struct {
	Items      []Decision        `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	requester, ok := org.EmployeeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "not authenticated", "sign in to continue")
		return
	}

	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", "request body must be valid JSON")
		return
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), idemKey, "permits"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				httpx.Problem(w, http.StatusConflict, "duplicate submission", "this request was already processed")
				return
			}
			h.logger.Error("idempotency check failed", "error", err)
			httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
			return
		}
	}

	input := SubmitInput{
		DepartmentID: req.DepartmentID,
		ExitTime:     req.ExitTime,
		ReturnTime:   req.ReturnTime,
		Reason:       req.Reason,
		Destination:  req.Destination,
	}
	dateMalformed := false
	if req.Date != "" {
		parsed, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			dateMalformed = true
		} else {
			input.Date = parsed
		}
	}

	permit, err := h.service.Submit(r.Context(), requester, input)
	if err != nil {
		if idemKey != "" && h.idem != nil {
			// Release the key so the client can retry after fixing
			// the request.
			if delErr := h.idem.Delete(r.Context(), idemKey); delErr != nil {
				h.logger.Warn("idempotency key release failed", "error", delErr)
			}
		}
		if ve, ok := AsValidationError(err); ok && dateMalformed {
			ve.Fields["date"] = "date must be in YYYY-MM-DD format"
		} else if dateMalformed {
			err = &ValidationError{Fields: map[string]string{"date": "date must be in YYYY-MM-DD format"}}
		}
		h.respondError(w, "submit permit", err)
		return
	}

	h.recordAudit(r.Context(), requester.ID, "permit.submitted", permit.ID, map[string]any{
		"date":        permit.Date.Format(dateLayout),
		"destination": permit.Destination,
	})
	httpx.JSON(w, http.StatusCreated, permit)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	viewer, ok := org.EmployeeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "not authenticated", "sign in to continue")
		return
	}

	filters, err := ParseFilters(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}
	page, perPage := parsePageParams(r)

	items, pagination, err := h.service.ListVisible(r.Context(), viewer, filters, page, perPage)
	if err != nil {
		h.respondError(w, "list permits", err)
		return
	}
	if items == nil {
		items = []Permit{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, Pagination: pagination})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	viewer, ok := org.EmployeeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "not authenticated", "sign in to continue")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "not found", "no such permit")
		return
	}

	permit, err := h.service.Get(r.Context(), viewer, id)
	if err != nil {
		h.respondError(w, "get permit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, permit)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	approver, ok := org.EmployeeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "not authenticated", "sign in to continue")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "not found", "no such permit")
		return
	}

	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid request", "request body must be valid JSON")
		return
	}

	permit, err := h.service.Decide(r.Context(), id, approver, Outcome(req.Outcome), req.Notes)
	if err != nil {
		h.respondError(w, "decide permit", err)
		return
	}

	h.recordAudit(r.Context(), approver.ID, "permit."+req.Outcome, permit.ID, map[string]any{
		"notes": req.Notes,
	})
	httpx.JSON(w, http.StatusOK, permit)
}

func (h *Handler) handleDecisionHistory(w http.ResponseWriter, r *http.Request) {
	viewer, ok := org.EmployeeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "not authenticated", "sign in to continue")
		return
	}
	page, perPage := parsePageParams(r)

	items, pagination, err := h.service.DecisionHistory(r.Context(), viewer, page, perPage)
	if err != nil {
		h.respondError(w, "decision history", err)
		return
	}
	if items == nil {
		items = []Decision{}
	}
	httpx.JSON(w, http.StatusOK, decisionListResponse{Items: items, Pagination: pagination})
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	viewer, ok := org.EmployeeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "not authenticated", "sign in to continue")
		return
	}

	key := fmt.Sprintf("dashboard:%d", viewer.ID)
	result, err, _ := singleflightStats(r.Context(), key, func(ctx context.Context) (map[string]int, error) {
		return h.service.StatsFor(ctx, viewer)
	})
	if err != nil {
		h.respondError(w, "dashboard stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":  viewer.Role,
		"stats": result,
	})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if ve, ok := AsValidationError(err); ok {
		httpx.FieldProblem(w, http.StatusUnprocessableEntity, "validation failed", ve.Fields)
		return
	}
	switch {
	case err == nil:
		return
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "not found", "no such permit")
	case errors.Is(err, ErrAlreadyProcessed):
		httpx.Problem(w, http.StatusConflict, "already processed", "this permit has already been resolved")
	case errors.Is(err, ErrDuplicateDecision):
		httpx.Problem(w, http.StatusConflict, "duplicate decision", "you have already recorded a decision on this permit")
	case errors.Is(err, ErrUnauthorizedApprover):
		httpx.Problem(w, http.StatusForbidden, "not authorized", "your role and grade carry no approval authority over this request")
	case errors.Is(err, ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "forbidden", "you may not access this permit")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
	}
}

func (h *Handler) recordAudit(ctx context.Context, actorID int64, action string, permitID uuid.UUID, meta map[string]any) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "permit",
		EntityID: permitID.String(),
		Meta:     meta,
	}); err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}

// ParseFilters reads permit listing filters from query parameters.
func ParseFilters(q url.Values) (ListFilters, error) {
	var filters ListFilters

	if raw := q.Get("status"); raw != "" {
		switch Status(raw) {
		case StatusPending, StatusApproved, StatusRejected:
			filters.Status = Status(raw)
		default:
			return ListFilters{}, fmt.Errorf("unknown status %q", raw)
		}
	}
	if raw := q.Get("department_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return ListFilters{}, fmt.Errorf("invalid department_id %q", raw)
		}
		filters.DepartmentID = id
	}
	if raw := q.Get("grade"); raw != "" {
		grade, err := org.ParseGrade(raw)
		if err != nil {
			return ListFilters{}, err
		}
		filters.Grade = grade
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return ListFilters{}, fmt.Errorf("invalid from date %q", raw)
		}
		filters.DateFrom = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return ListFilters{}, fmt.Errorf("invalid to date %q", raw)
		}
		filters.DateTo = to
	}
	filters.Search = q.Get("q")
	return filters, nil
}

func parsePageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return page, perPage
}
