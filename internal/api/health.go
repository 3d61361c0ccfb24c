package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Health handles GET /api/health: every issue plus coverage.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Issues:   h.svc.RunHealthChecks(r.Context()),
		Coverage: h.svc.Coverage(r.Context()),
	})
}

// Orphans handles GET /api/health/orphans.
func (h *Handler) Orphans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.svc.FindOrphans(r.Context())})
}

// Cycles handles GET /api/health/cycles.
func (h *Handler) Cycles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cycles": h.svc.FindCircularDeps(r.Context())})
}

// Uncovered handles GET /api/health/uncovered.
func (h *Handler) Uncovered(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": h.svc.FindUncoveredRequirements(r.Context())})
}

// Coverage handles GET /api/health/coverage.
func (h *Handler) Coverage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Coverage(r.Context()))
}

// Impact handles GET /api/impact/{id}?version=.
//
//	@Summary		Report what a version change of an item would reach
//	@Tags			health
//	@Produce		json
//	@Param			id		path		string	true	"Item id"
//	@Param			version	query		string	false	"Proposed version"
//	@Success		200		{object}	models.ImpactAnalysis
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/impact/{id} [get]
func (h *Handler) Impact(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetImpactAnalysis(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("version"))
	if err != nil {
		writeError(w, "impact analysis", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
