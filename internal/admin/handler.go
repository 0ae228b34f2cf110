// Package admin serves the administrative surface: the employee
// directory, the full permit register, and its exports.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/permits"
	"github.com/gatepass-hq/gatepass/internal/platform/httpx"
	"github.com/gatepass-hq/gatepass/internal/shared"
)

const directoryPageSize = 15

// Directory exposes employee directory reads.
type Directory interface {
	ListEmployees(ctx context.Context, filters org.DirectoryFilters, limit, offset int) ([]org.Employee, int, error)
	ListDepartments(ctx context.Context) ([]org.Department, error)
}

// PermitSource exposes unrestricted permit reads for exports.
type PermitSource interface {
	List(ctx context.Context, scope permits.Scope, filters permits.ListFilters, limit, offset int) ([]permits.Permit, int, error)
	CountByStatus(ctx context.Context, scope permits.Scope) (map[permits.Status]int, error)
}

// PDFRenderer turns a permit listing into a PDF document.
type PDFRenderer interface {
	RenderPermitRegister(ctx context.Context, items []permits.Permit, generatedAt time.Time) ([]byte, error)
}

// Auditor records export actions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Handler coordinates the admin HTTP surface.
type Handler struct {
	logger    *slog.Logger
	directory Directory
	permits   PermitSource
	pdf       PDFRenderer
	audit     Auditor
	now       func() time.Time
}

// NewHandler constructs the admin handler.
func NewHandler(logger *slog.Logger, directory Directory, source PermitSource, pdf PDFRenderer, audit Auditor) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		directory: directory,
		permits:   source,
		pdf:       pdf,
		audit:     audit,
		now:       time.Now,
	}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type employeeListResponse struct {
	Items      []org.Employee    `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) handleEmployees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := org.DirectoryFilters{Search: q.Get("q")}
	if raw := q.Get("department_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "invalid filter", "invalid department_id")
			return
		}
		filters.DepartmentID = id
	}
	if raw := q.Get("grade"); raw != "" {
		grade, err := org.ParseGrade(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid filter", err.Error())
			return
		}
		filters.Grade = grade
	}
	if raw := q.Get("role"); raw != "" {
		role, err := org.ParseRole(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "invalid filter", err.Error())
			return
		}
		filters.Role = role
	}

	page, _ := strconv.Atoi(q.Get("page"))
	pg := shared.NewPagination(page, directoryPageSize, 0)
	items, total, err := h.directory.ListEmployees(r.Context(), filters, pg.PerPage, pg.Offset())
	if err != nil {
		h.logger.Error("list employees", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
		return
	}
	if items == nil {
		items = []org.Employee{}
	}
	httpx.JSON(w, http.StatusOK, employeeListResponse{
		Items:      items,
		Pagination: shared.NewPagination(pg.Page, pg.PerPage, total),
	})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.permits.CountByStatus(r.Context(), permits.Scope{Grades: permits.AllGrades()})
	if err != nil {
		h.logger.Error("permit summary", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"pending":  counts[permits.StatusPending],
		"approved": counts[permits.StatusApproved],
		"rejected": counts[permits.StatusRejected],
		"total":    counts[permits.StatusPending] + counts[permits.StatusApproved] + counts[permits.StatusRejected],
	})
}

func (h *Handler) recordExport(ctx context.Context, format string, rows int) {
	if h.audit == nil {
		return
	}
	actorID := int64(0)
	if employee, ok := org.EmployeeFromContext(ctx); ok {
		actorID = employee.ID
	}
	if err := h.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "permits.export",
		Entity:   "permit_register",
		EntityID: format,
		Meta:     map[string]any{"rows": rows},
	}); err != nil {
		h.logger.Warn("audit record", slog.Any("error", err))
	}
}
