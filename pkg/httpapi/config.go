package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/txn2/config-service/pkg/conferr"
	"github.com/txn2/config-service/pkg/configservice"
	"github.com/txn2/config-service/pkg/validate"
)

// VersionHeader reports the version of the configuration returned by GET.
const VersionHeader = "X-Config-Version"

// readBody reads at most one byte past the limit so that oversize bodies
// reach the size check instead of being silently truncated.
func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, int64(h.deps.MaxBodyBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return data, nil
}

// saveConfig handles POST /config/{service}.
func (h *Handler) saveConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := h.readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	result, err := h.deps.Service.Save(r.Context(), chi.URLParam(r, "service"), raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// getConfig handles GET /config/{service}. The response is the stored
// document itself. With ?template=true the request body, a JSON object,
// supplies the template variables.
func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := configservice.GetOptions{Render: templateRequested(q.Get("template"))}

	if v := q.Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeServiceError(w, conferr.New(conferr.InvalidVersion, "Version must be a positive integer"))
			return
		}
		opts.Version = &n
	}

	if opts.Render {
		raw, err := h.readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Could not read request body")
			return
		}
		opts.Vars = templateVars(raw)
	}

	cfg, err := h.deps.Service.Get(r.Context(), chi.URLParam(r, "service"), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set(VersionHeader, strconv.Itoa(cfg.Version))
	writeJSON(w, http.StatusOK, cfg.Payload)
}

// templateRequested accepts 1, true and yes in any case.
func templateRequested(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// templateVars decodes a JSON object of variables. Anything else, including
// malformed JSON, yields no variables.
func templateVars(raw []byte) map[string]any {
	vars := map[string]any{}
	if len(raw) == 0 {
		return vars
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return vars
	}
	if m, ok := decoded.(map[string]any); ok {
		return m
	}
	return vars
}

// getHistory handles GET /config/{service}/history.
func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	revs, err := h.deps.Service.History(r.Context(), chi.URLParam(r, "service"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revs)
}

// validateConfig handles POST /config/{service}/validate. Nothing is stored.
func (h *Handler) validateConfig(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if err := validate.ServiceName(service); err != nil {
		writeServiceError(w, err)
		return
	}

	raw, err := h.readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	summary, err := h.deps.Service.Validate(r.Context(), raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
