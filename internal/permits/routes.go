package permits

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/shared"
)

// MountRoutes registers permit endpoints onto the router. The caller is
// expected to have resolved the employee already; role restrictions for
// approver endpoints are applied here.
func (h *Handler) MountRoutes(r chi.Router, mw org.Middleware) {
	if h == nil {
		return
	}
	submitLimiter := httprate.Limit(20, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)

	r.Get("/permits", h.handleList)
	r.Get("/permits/{id}", h.handleGet)
	r.Group(func(gr chi.Router) {
		gr.Use(submitLimiter)
		gr.Post("/permits", h.handleSubmit)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(mw.RequireRole(org.RoleSupervisor, org.RoleManager, org.RoleHR))
		gr.Post("/permits/{id}/decision", h.handleDecide)
		gr.Get("/decisions", h.handleDecisionHistory)
	})
	r.Get("/dashboard", h.handleDashboard)
}

func rateLimitKey(r *http.Request) (string, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
