package org

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gatepass-hq/gatepass/internal/shared"
)

type employeeContextKey struct{}

// ContextWithEmployee stores the acting employee in context.
func ContextWithEmployee(ctx context.Context, e Employee) context.Context {
	return context.WithValue(ctx, employeeContextKey{}, e)
}

// EmployeeFromContext extracts the acting employee from context.
func EmployeeFromContext(ctx context.Context) (Employee, bool) {
	e, ok := ctx.Value(employeeContextKey{}).(Employee)
	return e, ok
}

// EmployeeResolver loads the employee profile for a login user.
type EmployeeResolver interface {
	EmployeeByUserID(ctx context.Context, userID int64) (Employee, error)
}

// Middleware resolves the acting employee from the session and enforces
// role membership on route groups. Every downstream handler receives the
// employee explicitly through the request context rather than reading
// ambient session state.
type Middleware struct {
	Resolver EmployeeResolver
	Logger   *slog.Logger
}

// RequireEmployee loads the employee profile and rejects requests
// without one.
func (m Middleware) RequireEmployee(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e, ok := m.resolve(r)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if !e.IsActive {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithEmployee(r.Context(), e)))
	})
}

// RequireRole ensures the acting employee holds one of the given roles.
// It must run after RequireEmployee.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	allowed := make(map[Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			e, ok := EmployeeFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if _, ok := allowed[e.Role]; !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) resolve(r *http.Request) (Employee, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return Employee{}, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return Employee{}, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("org parse user id", slog.String("value", raw))
		}
		return Employee{}, false
	}
	e, err := m.Resolver.EmployeeByUserID(r.Context(), userID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Warn("org resolve employee", slog.Any("error", err))
		}
		return Employee{}, false
	}
	return e, true
}
