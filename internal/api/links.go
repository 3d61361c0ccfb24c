package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tracelight/internal/linkstore"
)

// ListLinks handles GET /api/links.
//
//	@Summary		List every link
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	LinkListResponse
//	@Security		BearerAuth
//	@Router			/links [get]
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LinkListResponse{Links: h.svc.ListLinks(r.Context())})
}

// CreateLink handles POST /api/links.
//
//	@Summary		Create a proposed, floating link
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddLinkRequest	true	"Link to create"
//	@Success		201		{object}	LinkView
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req AddLinkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Author == "" {
		req.Author = authorFrom(r.Context())
	}
	link, err := h.svc.AddLink(r.Context(), linkstore.AddRequest{
		SourceItemID: req.SourceItemID,
		TargetItemID: req.TargetItemID,
		Type:         req.Type,
		Notes:        req.Notes,
		Author:       req.Author,
	})
	if err != nil {
		writeError(w, "create link", err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

// GetLink handles GET /api/links/{id}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.GetLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get link", err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// UpdateLink handles PATCH /api/links/{id}.
//
//	@Summary		Edit notes and/or type of a link
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Link id"
//	@Param			body	body		UpdateLinkRequest	true	"Fields to change"
//	@Success		200		{object}	LinkView
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/{id} [patch]
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	var req UpdateLinkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	link, err := h.svc.UpdateLink(r.Context(), chi.URLParam(r, "id"), linkstore.UpdateRequest{
		Notes: req.Notes,
		Type:  req.Type,
	})
	if err != nil {
		writeError(w, "update link", err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// DeleteLink handles DELETE /api/links/{id}. Unknown ids succeed.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	h.svc.RemoveLink(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// SetLinkStatus handles POST /api/links/{id}/status.
//
//	@Summary		Move a link through its lifecycle
//	@Tags			links
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Link id"
//	@Param			body	body		StatusRequest	true	"Target status"
//	@Success		200		{object}	LinkView
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links/{id}/status [post]
func (h *Handler) SetLinkStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	link, err := h.svc.UpdateLinkStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, "set link status", err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// PinLink handles POST /api/links/{id}/pin.
func (h *Handler) PinLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.PinLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "pin link", err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// UnpinLink handles POST /api/links/{id}/unpin.
func (h *Handler) UnpinLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.svc.UnpinLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "unpin link", err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

// Baseline handles POST /api/baseline.
//
//	@Summary		Pin every unpinned link at the current item versions
//	@Tags			links
//	@Produce		json
//	@Success		200	{object}	map[string]any
//	@Security		BearerAuth
//	@Router			/baseline [post]
func (h *Handler) Baseline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"results": h.svc.BaselineAllLinks(r.Context()),
	})
}
