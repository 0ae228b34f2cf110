package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gatepass-hq/gatepass/internal/admin"
	"github.com/gatepass-hq/gatepass/internal/auth"
	"github.com/gatepass-hq/gatepass/internal/observability"
	"github.com/gatepass-hq/gatepass/internal/org"
	"github.com/gatepass-hq/gatepass/internal/permits"
	"github.com/gatepass-hq/gatepass/internal/shared"
	"github.com/gatepass-hq/gatepass/jobs"
	"github.com/gatepass-hq/gatepass/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager

	AuthHandler    *auth.Handler
	OrgHandler     *org.Handler
	PermitsHandler *permits.Handler
	AdminHandler   *admin.Handler
	ReportHandler  *report.Handler
	JobHandler     *jobs.Handler

	EmployeeMiddleware org.Middleware
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Gatepass defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(gr chi.Router) {
		gr.Use(params.EmployeeMiddleware.RequireEmployee)
		if params.OrgHandler != nil {
			params.OrgHandler.MountRoutes(gr)
		}
		if params.PermitsHandler != nil {
			params.PermitsHandler.MountRoutes(gr, params.EmployeeMiddleware)
		}
		if params.AdminHandler != nil {
			gr.Route("/admin", func(ar chi.Router) {
				ar.Use(params.EmployeeMiddleware.RequireRole(org.RoleAdmin))
				params.AdminHandler.MountRoutes(ar)
			})
		}
	})

	if params.ReportHandler != nil {
		r.Route("/report", params.ReportHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
