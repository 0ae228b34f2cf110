package permits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/shared"
)

type stubAuditor struct {
	mu      sync.Mutex
	records []shared.AuditLog
}

func (s *stubAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, log)
	return nil
}

type stubIdemGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (s *stubIdemGuard) CheckAndInsert(ctx context.Context, key, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	s.seen[key] = true
	return nil
}

func (s *stubIdemGuard) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, key)
	return nil
}

func newHandlerFixture(t *testing.T) (*Handler, *Service, *stubAuditor, *stubIdemGuard) {
	t.Helper()
	svc, _, _ := newTestService()
	audit := &stubAuditor{}
	idem := &stubIdemGuard{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(logger, svc, audit, idem), svc, audit, idem
}

// handlerRouter mounts the handler behind a middleware that injects the
// acting employee, standing in for the session resolution chain.
func handlerRouter(h *Handler, actor org.Employee) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(org.ContextWithEmployee(req.Context(), actor)))
		})
	})
	r.Post("/permits", h.handleSubmit)
	r.Get("/permits", h.handleList)
	r.Get("/permits/{id}", h.handleGet)
	r.Post("/permits/{id}/decision", h.handleDecide)
	r.Get("/decisions", h.handleDecisionHistory)
	r.Get("/dashboard", h.handleDashboard)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func submitBody() map[string]any {
	return map[string]any{
		"department_id": 1,
		"date":          testNow.AddDate(0, 0, 1).Format(dateLayout),
		"exit_time":     "09:00",
		"return_time":   "11:30",
		"reason":        "Bank errand",
		"destination":   "BCA Sudirman branch",
	}
}

func TestHandleSubmit(t *testing.T) {
	h, _, audit, _ := newHandlerFixture(t)
	router := handlerRouter(h, requester(6, org.GradeG12))

	rec := doJSON(t, router, http.MethodPost, "/permits", submitBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Permit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, int64(6), created.EmployeeID)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "permit.submitted", audit.records[0].Action)
	assert.Equal(t, created.ID.String(), audit.records[0].EntityID)
}

func TestHandleSubmitMalformedDate(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)
	router := handlerRouter(h, requester(6, org.GradeG12))

	body := submitBody()
	body["date"] = "10-03-2026"
	rec := doJSON(t, router, http.MethodPost, "/permits", body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "date must be in YYYY-MM-DD format")
}

func TestHandleSubmitIdempotency(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)
	router := handlerRouter(h, requester(6, org.GradeG12))

	headers := map[string]string{"Idempotency-Key": "retry-abc"}
	rec := doJSON(t, router, http.MethodPost, "/permits", submitBody(), headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/permits", submitBody(), headers)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate submission")
}

func TestHandleSubmitReleasesKeyOnValidationFailure(t *testing.T) {
	h, _, _, idem := newHandlerFixture(t)
	router := handlerRouter(h, requester(6, org.GradeG12))

	body := submitBody()
	body["reason"] = ""
	headers := map[string]string{"Idempotency-Key": "retry-def"}
	rec := doJSON(t, router, http.MethodPost, "/permits", body, headers)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, idem.seen["retry-def"])

	// The corrected retry with the same key succeeds.
	rec = doJSON(t, router, http.MethodPost, "/permits", submitBody(), headers)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandleDecide(t *testing.T) {
	h, svc, audit, _ := newHandlerFixture(t)
	p := submitPermit(t, svc, org.GradeG12)

	router := handlerRouter(h, approver(2, org.RoleHR, org.GradeG9))
	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/permits/%s/decision", p.ID), map[string]any{
		"outcome": "approved",
		"notes":   "ok",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resolved Permit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, StatusApproved, resolved.Status)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "permit.approved", audit.records[0].Action)
}

func TestHandleDecideUnauthorized(t *testing.T) {
	h, svc, _, _ := newHandlerFixture(t)
	p := submitPermit(t, svc, org.GradeG13)

	router := handlerRouter(h, approver(3, org.RoleManager, org.GradeG8))
	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/permits/%s/decision", p.ID), map[string]any{
		"outcome": "approved",
	}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "no approval authority")
}

func TestHandleDecideConflicts(t *testing.T) {
	h, svc, _, _ := newHandlerFixture(t)
	p := submitPermit(t, svc, org.GradeG12)

	hrRouter := handlerRouter(h, approver(2, org.RoleHR, org.GradeG9))
	rec := doJSON(t, hrRouter, http.MethodPost, fmt.Sprintf("/permits/%s/decision", p.ID), map[string]any{"outcome": "approved"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	otherRouter := handlerRouter(h, approver(4, org.RoleHR, org.GradeG9))
	rec = doJSON(t, otherRouter, http.MethodPost, fmt.Sprintf("/permits/%s/decision", p.ID), map[string]any{"outcome": "rejected"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already been resolved")
}

func TestHandleGetOwnership(t *testing.T) {
	h, svc, _, _ := newHandlerFixture(t)
	p := submitPermit(t, svc, org.GradeG12)

	ownerRouter := handlerRouter(h, requester(6, org.GradeG12))
	rec := doJSON(t, ownerRouter, http.MethodGet, "/permits/"+p.ID.String(), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	otherRouter := handlerRouter(h, org.Employee{ID: 7, Role: org.RoleEmployee, Grade: org.GradeG13})
	rec = doJSON(t, otherRouter, http.MethodGet, "/permits/"+p.ID.String(), nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, ownerRouter, http.MethodGet, "/permits/not-a-uuid", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListRejectsBadFilters(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)
	router := handlerRouter(h, requester(6, org.GradeG12))

	rec := doJSON(t, router, http.MethodGet, "/permits?status=maybe", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/permits?department_id=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListReturnsEmptyArray(t *testing.T) {
	h, _, _, _ := newHandlerFixture(t)
	router := handlerRouter(h, requester(6, org.GradeG12))

	rec := doJSON(t, router, http.MethodGet, "/permits", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)
}

func TestHandleDashboard(t *testing.T) {
	h, svc, _, _ := newHandlerFixture(t)
	submitPermit(t, svc, org.GradeG12)

	router := handlerRouter(h, requester(6, org.GradeG12))
	rec := doJSON(t, router, http.MethodGet, "/dashboard", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Role  org.Role       `json:"role"`
		Stats map[string]int `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, org.RoleEmployee, payload.Role)
	assert.Equal(t, 1, payload.Stats["total_requests"])
}

func TestParseFilters(t *testing.T) {
	filters, err := ParseFilters(url.Values{
		"status":        {"pending"},
		"department_id": {"3"},
		"grade":         {"G11"},
		"from":          {"2026-03-01"},
		"to":            {"2026-03-31"},
		"q":             {"fajar"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, filters.Status)
	assert.Equal(t, int64(3), filters.DepartmentID)
	assert.Equal(t, org.GradeG11, filters.Grade)
	assert.Equal(t, "fajar", filters.Search)
	assert.False(t, filters.DateFrom.IsZero())
	assert.False(t, filters.DateTo.IsZero())

	_, err = ParseFilters(url.Values{"grade": {"G99"}})
	assert.Error(t, err)
	_, err = ParseFilters(url.Values{"from": {"01/03/2026"}})
	assert.Error(t, err)
}
