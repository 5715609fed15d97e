// Package httpapi exposes the matcher over plain HTTP. This is the debug and
// integration surface; production callers go through MCP or connectivity.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/domtarget/element"
	"github.com/hazyhaar/domtarget/match"
	"github.com/hazyhaar/domtarget/matchlog"
	"github.com/hazyhaar/domtarget/shield"
)

// API serves the matcher's HTTP surface. Log may be nil when no decision
// store is configured; the stats endpoint then reports matcher stats only.
type API struct {
	matcher *match.Matcher
	log     *matchlog.Store
	logger  *slog.Logger
}

// New creates the API around a matcher.
func New(m *match.Matcher, log *matchlog.Store, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{matcher: m, log: log, logger: logger}
}

// Router builds the chi router with all routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}

	r.Get("/healthz", a.handleHealth)
	r.Post("/v1/find", a.handleFind)
	r.Post("/v1/bounds", a.handleBounds)
	r.Post("/v1/register", a.handleRegister)
	r.Delete("/v1/context/{contextID}", a.handleClearContext)
	r.Get("/v1/stats", a.handleStats)
	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type findRequest struct {
	ContextID   string `json:"context_id"`
	Description string `json:"description,omitempty"`
	Role        string `json:"role,omitempty"`
	TextHint    string `json:"text_hint,omitempty"`
	MaxResults  int    `json:"max_results,omitempty"`
}

type findResponse struct {
	Matches []element.Match `json:"matches"`
	Count   int             `json:"count"`
}

// handleFind resolves by description, or by role when description is empty.
func (a *API) handleFind(w http.ResponseWriter, r *http.Request) {
	var req findRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ContextID == "" {
		writeError(w, http.StatusBadRequest, errors.New("context_id required"))
		return
	}

	var matches []element.Match
	switch {
	case req.Description != "":
		matches = a.matcher.FindByDescription(r.Context(), req.ContextID, req.Description, req.MaxResults)
	case req.Role != "":
		matches = a.matcher.FindByRole(r.Context(), req.ContextID, req.Role, req.TextHint)
	default:
		writeError(w, http.StatusBadRequest, errors.New("description or role required"))
		return
	}
	if matches == nil {
		matches = []element.Match{}
	}
	writeJSON(w, http.StatusOK, findResponse{Matches: matches, Count: len(matches)})
}

type boundsRequest struct {
	ContextID string   `json:"context_id"`
	Selectors []string `json:"selectors"`
}

func (a *API) handleBounds(w http.ResponseWriter, r *http.Request) {
	var req boundsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ContextID == "" || len(req.Selectors) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("context_id and selectors required"))
		return
	}

	batch, err := a.matcher.Bounds(r.Context(), req.ContextID, req.Selectors)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

type registerRequest struct {
	ContextID string              `json:"context_id"`
	Elements  []element.Semantics `json:"elements"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ContextID == "" {
		writeError(w, http.StatusBadRequest, errors.New("context_id required"))
		return
	}

	for _, sem := range req.Elements {
		a.matcher.RegisterElement(req.ContextID, sem)
	}
	writeJSON(w, http.StatusOK, map[string]int{"registered": len(req.Elements)})
}

func (a *API) handleClearContext(w http.ResponseWriter, r *http.Request) {
	contextID := chi.URLParam(r, "contextID")
	if contextID == "" {
		writeError(w, http.StatusBadRequest, errors.New("context id required"))
		return
	}
	a.matcher.ClearContext(contextID)
	writeJSON(w, http.StatusOK, map[string]string{"cleared": contextID})
}

type statsResponse struct {
	Matcher   match.Stats     `json:"matcher"`
	Decisions *matchlog.Stats `json:"decisions,omitempty"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Matcher: a.matcher.CurrentStats()}
	if a.log != nil {
		ds, err := a.log.Stats(r.Context())
		if err != nil {
			a.logger.WarnContext(r.Context(), "httpapi: decision stats", "error", err)
		} else {
			resp.Decisions = ds
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
