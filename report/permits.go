package report

import (
	"context"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gatepass-hq/gatepass/internal/permits"
)

// Handler manages report endpoints.
type Handler struct {
	client *Client
	logger *slog.Logger
}

// NewHandler creates a report handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if err := h.client.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// RenderPermitRegister converts a permit listing into a PDF register.
func (c *Client) RenderPermitRegister(ctx context.Context, items []permits.Permit, generatedAt time.Time) ([]byte, error) {
	var b strings.Builder
	b.WriteString("<html><head><title>Exit Permit Register</title>")
	b.WriteString("<style>body{font-family:sans-serif;font-size:12px}table{border-collapse:collapse;width:100%}th,td{border:1px solid #999;padding:4px 6px;text-align:left}th{background:#eee}</style>")
	b.WriteString("</head><body>")
	b.WriteString("<h1>Exit Permit Register</h1>")
	b.WriteString("<p>Generated at " + generatedAt.Format(time.RFC1123) + "</p>")
	b.WriteString("<table><tr><th>Employee</th><th>Grade</th><th>Department</th><th>Date</th><th>Exit</th><th>Return</th><th>Destination</th><th>Status</th></tr>")
	for _, p := range items {
		b.WriteString("<tr>")
		b.WriteString("<td>" + html.EscapeString(p.EmployeeName) + "</td>")
		b.WriteString("<td>" + html.EscapeString(string(p.EmployeeGrade)) + "</td>")
		b.WriteString("<td>" + html.EscapeString(p.DepartmentName) + "</td>")
		b.WriteString("<td>" + p.Date.Format("2006-01-02") + "</td>")
		b.WriteString("<td>" + html.EscapeString(p.ExitTime) + "</td>")
		b.WriteString("<td>" + html.EscapeString(p.ReturnTime) + "</td>")
		b.WriteString("<td>" + html.EscapeString(p.Destination) + "</td>")
		b.WriteString("<td>" + html.EscapeString(string(p.Status)) + "</td>")
		b.WriteString("</tr>")
	}
	b.WriteString("</table></body></html>")
	return c.RenderHTML(ctx, b.String())
}
