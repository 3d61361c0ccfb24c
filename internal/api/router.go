package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tracelight/internal/traceservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// docs, if non-nil, serves the item document routes.
func NewRouter(svc *traceservice.Service, authEnabled bool, token string, sseHandler http.Handler, docs *DocumentService) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Use(AuthorMiddleware)

	// Model.
	r.Get("/items", h.ListItems)
	r.Put("/model", h.ReplaceModel)
	r.Get("/items/{id}/links", h.LinksForItem)
	r.Get("/items/{id}/hierarchy", h.Hierarchy)
	r.Get("/search", h.Search)

	// Links.
	r.Get("/links", h.ListLinks)
	r.Post("/links", h.CreateLink)
	r.Get("/links/{id}", h.GetLink)
	r.Patch("/links/{id}", h.UpdateLink)
	r.Delete("/links/{id}", h.DeleteLink)
	r.Post("/links/{id}/status", h.SetLinkStatus)
	r.Post("/links/{id}/pin", h.PinLink)
	r.Post("/links/{id}/unpin", h.UnpinLink)
	r.Post("/baseline", h.Baseline)

	// Health and impact.
	r.Get("/health", h.Health)
	r.Get("/health/orphans", h.Orphans)
	r.Get("/health/cycles", h.Cycles)
	r.Get("/health/uncovered", h.Uncovered)
	r.Get("/health/coverage", h.Coverage)
	r.Get("/impact/{id}", h.Impact)

	// Item documents.
	if docs != nil {
		dh := &DocumentHandler{docs: docs}
		r.Get("/documents/*", dh.GetDocument)
		r.Put("/documents/*", dh.PutDocument)
		r.Delete("/documents/*", dh.DeleteDocument)
		r.Post("/sync", dh.Sync)
	}

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
