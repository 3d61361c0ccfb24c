package api

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tracelight/internal/apperr"
	"github.com/starford/tracelight/internal/checksum"
	"github.com/starford/tracelight/internal/index"
	"github.com/starford/tracelight/internal/models"
	"github.com/starford/tracelight/internal/storage"
	"github.com/starford/tracelight/internal/version"
)

// DocumentService writes item documents to the model directory and keeps
// the index in step, for hosts that edit the model through the API
// rather than on disk.
type DocumentService struct {
	store    storage.Provider
	db       index.ModelIndex
	onChange func(kind, itemID string)
}

// NewDocumentService creates a document service. onChange, if non-nil, is
// called after each successful write or delete.
func NewDocumentService(store storage.Provider, db index.ModelIndex, onChange func(kind, itemID string)) *DocumentService {
	return &DocumentService{store: store, db: db, onChange: onChange}
}

// DocumentDetail is the response payload for a single item document.
type DocumentDetail struct {
	Path     string                  `json:"path"`
	Content  string                  `json:"content"`
	Checksum string                  `json:"checksum"`
	Item     models.Item             `json:"item"`
	Edges    []models.StructuralEdge `json:"edges"`
}

// Get reads and parses one document.
func (s *DocumentService) Get(path string) (*DocumentDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, path)
		}
		return nil, err
	}
	d, err := index.ParseDocument(path, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidDocument, err)
	}
	edges := d.Edges
	if edges == nil {
		edges = []models.StructuralEdge{}
	}
	return &DocumentDetail{
		Path:     path,
		Content:  string(data),
		Checksum: d.Checksum,
		Item:     d.Item,
		Edges:    edges,
	}, nil
}

// Put creates or replaces a document. A non-empty ifMatch must equal the
// checksum of the current content, and an already indexed item may not move
// to an older version. The document is parsed before anything is written,
// so invalid content never reaches disk.
func (s *DocumentService) Put(path string, content []byte, ifMatch string) (*DocumentDetail, bool, error) {
	if !strings.HasSuffix(path, ".md") {
		return nil, false, fmt.Errorf("%w: %s is not a .md document", apperr.ErrInvalidDocument, path)
	}
	d, err := index.ParseDocument(path, content)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", apperr.ErrInvalidDocument, err)
	}

	created := true
	if existing, err := s.store.Read(path); err == nil {
		created = false
		if ifMatch != "" && !checksum.Matches(ifMatch, existing) {
			return nil, false, fmt.Errorf("%w: checksum mismatch for %s", apperr.ErrConflict, path)
		}
	} else if ifMatch != "" {
		return nil, false, fmt.Errorf("%w: %s", apperr.ErrNotFound, path)
	}

	prev, err := s.db.GetItem(d.Item.ID)
	if err != nil {
		return nil, false, err
	}
	if prev != nil && version.Less(d.Item.Version, prev.Version) {
		return nil, false, fmt.Errorf("%w: %s version %s is older than indexed %s",
			apperr.ErrConflict, d.Item.ID, d.Item.Version, prev.Version)
	}

	if err := s.store.Write(path, content); err != nil {
		return nil, false, err
	}
	if err := s.db.UpsertDocument(d); err != nil {
		return nil, false, err
	}
	kind := "updated"
	if created {
		kind = "created"
	}
	s.notify(kind, d.Item.ID)
	detail, err := s.Get(path)
	return detail, created, err
}

// Delete removes a document from disk and index.
func (s *DocumentService) Delete(path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", apperr.ErrNotFound, path)
		}
		return err
	}
	id, err := s.db.DeleteDocument(path)
	if err != nil {
		return err
	}
	if id != "" {
		s.notify("deleted", id)
	}
	return nil
}

// Resync re-indexes the model directory, picking up edits made while the
// watcher was off and documents dropped by a model replace.
func (s *DocumentService) Resync() (index.SyncReport, error) {
	rep, err := index.Sync(s.db, s.store, slog.Default())
	if err != nil {
		return rep, err
	}
	if rep.Indexed > 0 || rep.Removed > 0 {
		s.notify("synced", "")
	}
	return rep, nil
}

func (s *DocumentService) notify(kind, id string) {
	if s.onChange != nil {
		s.onChange(kind, id)
	}
}

// DocumentHandler serves the item document routes.
type DocumentHandler struct {
	docs *DocumentService
}

// documentPath extracts the document path from the URL (everything after
// /api/documents/). Supports encoded slashes from OpenAPI clients.
func documentPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// GetDocument handles GET /api/documents/*.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.docs.Get(path)
	if err != nil {
		writeDocumentError(w, "get document", err)
		return
	}
	w.Header().Set("ETag", `"`+doc.Checksum+`"`)
	writeJSON(w, http.StatusOK, doc)
}

// PutDocument handles PUT /api/documents/*.
//
//	@Summary		Create or replace an item document with optimistic concurrency
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string			true	"Document path"
//	@Param			If-Match	header	string			false	"SHA-256 checksum of the current content"
//	@Param			body		body	DocumentRequest	true	"Document content"
//	@Success		200			{object}	DocumentDetail
//	@Success		201			{object}	DocumentDetail
//	@Failure		400			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [put]
func (h *DocumentHandler) PutDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req DocumentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	doc, created, err := h.docs.Put(path, []byte(req.Content), r.Header.Get("If-Match"))
	if err != nil {
		writeDocumentError(w, "put document", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set("ETag", `"`+doc.Checksum+`"`)
	writeJSON(w, status, doc)
}

// DeleteDocument handles DELETE /api/documents/*.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.docs.Delete(path); err != nil {
		writeDocumentError(w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDocumentError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, apperr.ErrInvalidDocument) || errors.Is(err, storage.ErrInvalidPath) {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeError(w, op, err)
}

// Sync handles POST /api/sync.
//
//	@Summary		Re-index the model directory
//	@Tags			documents
//	@Produce		json
//	@Success		200	{object}	index.SyncReport
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *DocumentHandler) Sync(w http.ResponseWriter, _ *http.Request) {
	rep, err := h.docs.Resync()
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
