// Package httpapi exposes the configuration service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/txn2/config-service/pkg/audit"
	"github.com/txn2/config-service/pkg/conferr"
	"github.com/txn2/config-service/pkg/configservice"
	"github.com/txn2/config-service/pkg/health"
	"github.com/txn2/config-service/pkg/metrics"
	"github.com/txn2/config-service/pkg/validate"
)

// AuditQuerier reads audit events.
type AuditQuerier interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int, error)
}

// AuditMetricsQuerier aggregates audit events.
type AuditMetricsQuerier interface {
	Breakdown(ctx context.Context, filter audit.BreakdownFilter) ([]audit.BreakdownEntry, error)
	Overview(ctx context.Context, startTime, endTime *time.Time) (*audit.Overview, error)
}

// Deps holds the collaborators of the HTTP API. Only Service is required.
type Deps struct {
	Service *configservice.Service
	Health  *health.Checker
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// AuditQuerier enables GET /audit/events when set.
	AuditQuerier AuditQuerier
	// AuditMetrics enables the audit aggregate endpoints when set.
	AuditMetrics AuditMetricsQuerier

	// MCP is mounted at /mcp when set.
	MCP http.Handler

	// MaxBodyBytes bounds request bodies. Zero uses the payload size limit.
	MaxBodyBytes int
}

// Handler serves the HTTP API.
type Handler struct {
	deps   Deps
	router chi.Router
}

// NewHandler creates the HTTP API handler.
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = validate.DefaultMaxSize
	}
	h := &Handler{deps: deps, router: chi.NewRouter()}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	r := h.router
	r.Use(requestID)
	r.Use(accessLog(h.deps.Logger, h.deps.Metrics))
	r.Use(chimw.Recoverer)

	if h.deps.Health != nil {
		r.Get("/healthz", h.deps.Health.LivenessHandler())
		r.Get("/readyz", h.deps.Health.ReadinessHandler())
		r.Get("/health", h.deps.Health.StatusHandler())
	}
	if h.deps.Metrics != nil {
		r.Handle("/metrics", h.deps.Metrics.Handler())
	}

	r.Route("/config/{service}", func(r chi.Router) {
		r.Post("/", h.saveConfig)
		r.Get("/", h.getConfig)
		r.Get("/history", h.getHistory)
		r.Post("/validate", h.validateConfig)
	})
	r.Post("/config/", serviceRequired)
	r.Get("/config/", serviceRequired)

	if h.deps.AuditQuerier != nil {
		r.Get("/audit/events", h.listAuditEvents)
	}
	if h.deps.AuditMetrics != nil {
		r.Get("/audit/metrics/breakdown", h.getAuditBreakdown)
		r.Get("/audit/metrics/overview", h.getAuditOverview)
	}

	if h.deps.MCP != nil {
		r.Handle("/mcp", h.deps.MCP)
		r.Handle("/mcp/*", h.deps.MCP)
	}
}

func serviceRequired(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusBadRequest, "Service name is required")
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps a service failure to its status code.
func writeServiceError(w http.ResponseWriter, err error) {
	kind := conferr.KindOf(err)
	status := StatusFor(kind)
	msg := err.Error()
	if kind == conferr.Internal {
		msg = "Internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Details: conferr.DetailsOf(err)})
}

// StatusFor returns the HTTP status code of a failure kind.
func StatusFor(kind conferr.Kind) int {
	switch kind {
	case conferr.InvalidServiceName, conferr.EmptyBody, conferr.ParseError,
		conferr.InvalidVersion, conferr.TemplateRender:
		return http.StatusBadRequest
	case conferr.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case conferr.SchemaValidation:
		return http.StatusUnprocessableEntity
	case conferr.VersionConflict:
		return http.StatusConflict
	case conferr.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
