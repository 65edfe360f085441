package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/txn2/config-service/pkg/audit"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 1000

	paramStartTime = "start_time"
	paramEndTime   = "end_time"
)

// auditEventResponse wraps a paginated list of audit events.
type auditEventResponse struct {
	Data    []audit.Event `json:"data"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}

// listAuditEvents handles GET /audit/events.
func (h *Handler) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		ID:        q.Get("id"),
		Service:   q.Get("service"),
		Operation: audit.Operation(q.Get("operation")),
		StartTime: parseTimeParam(q, paramStartTime),
		EndTime:   parseTimeParam(q, paramEndTime),
	}
	if v := q.Get("success"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			filter.Success = &b
		}
	}

	filter.Limit = parseIntParam(q, "per_page")
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	filter.Offset = parsePageOffset(q, filter.Limit)

	events, err := h.deps.AuditQuerier.Query(r.Context(), filter)
	if err != nil {
		h.deps.Logger.Error("querying audit events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query audit events")
		return
	}

	countFilter := filter
	countFilter.Limit = 0
	countFilter.Offset = 0
	total, err := h.deps.AuditQuerier.Count(r.Context(), countFilter)
	if err != nil {
		h.deps.Logger.Error("counting audit events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to count audit events")
		return
	}

	if events == nil {
		events = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, auditEventResponse{
		Data:    events,
		Total:   total,
		Page:    filter.Offset/filter.Limit + 1,
		PerPage: filter.Limit,
	})
}

// getAuditBreakdown handles GET /audit/metrics/breakdown.
func (h *Handler) getAuditBreakdown(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	groupBy := audit.BreakdownDimension(q.Get("group_by"))
	if !audit.ValidBreakdownDimensions[groupBy] {
		writeError(w, http.StatusBadRequest,
			"invalid group_by: must be operation, service, error_kind, or transport")
		return
	}

	entries, err := h.deps.AuditMetrics.Breakdown(r.Context(), audit.BreakdownFilter{
		GroupBy:   groupBy,
		Limit:     parseIntParam(q, "limit"),
		StartTime: parseTimeParam(q, paramStartTime),
		EndTime:   parseTimeParam(q, paramEndTime),
	})
	if err != nil {
		h.deps.Logger.Error("querying audit breakdown", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query breakdown")
		return
	}
	if entries == nil {
		entries = []audit.BreakdownEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// getAuditOverview handles GET /audit/metrics/overview.
func (h *Handler) getAuditOverview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	overview, err := h.deps.AuditMetrics.Overview(r.Context(),
		parseTimeParam(q, paramStartTime),
		parseTimeParam(q, paramEndTime),
	)
	if err != nil {
		h.deps.Logger.Error("querying audit overview", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query overview")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

func parseTimeParam(q url.Values, key string) *time.Time {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// parsePageOffset computes the offset of the 1-based page parameter.
func parsePageOffset(q url.Values, limit int) int {
	if n := parseIntParam(q, "page"); n > 0 {
		return (n - 1) * limit
	}
	return 0
}

func parseIntParam(q url.Values, key string) int {
	if v := q.Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
