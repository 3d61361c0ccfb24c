package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tracelight/internal/traceservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *traceservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *traceservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListItems handles GET /api/items.
//
//	@Summary		List the canvas items and structural edges
//	@Tags			model
//	@Produce		json
//	@Success		200	{object}	ModelRequest
//	@Security		BearerAuth
//	@Router			/items [get]
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Items(r.Context())
	if err != nil {
		writeError(w, "list items", err)
		return
	}
	edges, err := h.svc.Edges(r.Context())
	if err != nil {
		writeError(w, "list edges", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"edges": edges,
	})
}

// ReplaceModel handles PUT /api/model.
//
//	@Summary		Replace the whole item/edge model
//	@Tags			model
//	@Accept			json
//	@Param			body	body	ModelRequest	true	"New model"
//	@Success		204		"Model replaced"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/model [put]
func (h *Handler) ReplaceModel(w http.ResponseWriter, r *http.Request) {
	var req ModelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.ReplaceModel(r.Context(), req.Items, req.Edges); err != nil {
		writeError(w, "replace model", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinksForItem handles GET /api/items/{id}/links.
//
//	@Summary		List the links touching an item
//	@Tags			links
//	@Produce		json
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	LinkListResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/links [get]
func (h *Handler) LinksForItem(w http.ResponseWriter, r *http.Request) {
	links := h.svc.GetLinksForNode(r.Context(), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, LinkListResponse{Links: links})
}

// Hierarchy handles GET /api/items/{id}/hierarchy.
//
//	@Summary		Show an item's containment parent, children and conflicting items
//	@Tags			items
//	@Produce		json
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	traceservice.Hierarchy
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/hierarchy [get]
func (h *Handler) Hierarchy(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetHierarchy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "hierarchy", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Search handles GET /api/search.
//
//	@Summary		Search items by id, label, requirement id or document text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchItems(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}
