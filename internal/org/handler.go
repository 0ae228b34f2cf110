package org

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gatepass-hq/gatepass/internal/platform/httpx"
)

// DirectoryService exposes the read operations used by the handler.
type DirectoryService interface {
	ListDepartments(ctx context.Context) ([]Department, error)
}

// Handler serves organisational reference data.
type Handler struct {
	logger  *slog.Logger
	service DirectoryService
}

// NewHandler constructs the org HTTP handler.
func NewHandler(logger *slog.Logger, service DirectoryService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers org routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/departments", h.handleDepartments)
	r.Get("/me", h.handleMe)
}

func (h *Handler) handleDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.service.ListDepartments(r.Context())
	if err != nil {
		h.logger.Error("list departments", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
		return
	}
	if departments == nil {
		departments = []Department{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": departments})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	employee, ok := EmployeeFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "not authenticated", "sign in to continue")
		return
	}
	httpx.JSON(w, http.StatusOK, employee)
}
