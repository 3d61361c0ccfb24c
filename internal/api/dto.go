package api

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tracelight/internal/models"
	"github.com/starford/tracelight/internal/traceservice"
	"github.com/starford/tracelight/internal/version"
)

// LinkView is a link as rendered by panels (aliased from the facade).
type LinkView = traceservice.LinkView

var linkTypes = []any{
	models.LinkSatisfies, models.LinkVerifies, models.LinkDerives, models.LinkRefines, models.LinkConflicts,
}

// linkStatuses includes broken so that setting it is refused as a
// transition (409) rather than as malformed input.
var linkStatuses = []any{
	models.StatusProposed, models.StatusAgreed, models.StatusImplemented, models.StatusVerified, models.StatusBroken,
}

// AddLinkRequest is the request body for creating a link.
type AddLinkRequest struct {
	SourceItemID string          `json:"sourceItemId" example:"T1"`
	TargetItemID string          `json:"targetItemId" example:"R1"`
	Type         models.LinkType `json:"type" example:"verifies"`
	Notes        string          `json:"notes,omitempty"`
	Author       string          `json:"author,omitempty" example:"alice"`
}

// Validate validates the request.
func (r *AddLinkRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SourceItemID, validation.Required),
		validation.Field(&r.TargetItemID, validation.Required),
		validation.Field(&r.Type, validation.Required, validation.In(linkTypes...)),
	)
}

// UpdateLinkRequest is the request body for PATCH /links/{id}. Omitted
// fields are left unchanged.
type UpdateLinkRequest struct {
	Notes *string          `json:"notes,omitempty"`
	Type  *models.LinkType `json:"type,omitempty"`
}

// Validate validates the request.
func (r *UpdateLinkRequest) Validate() error {
	if r.Notes == nil && r.Type == nil {
		return errors.New("notes or type is required")
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Type, validation.NilOrNotEmpty, validation.In(linkTypes...)),
	)
}

// StatusRequest is the request body for POST /links/{id}/status.
type StatusRequest struct {
	Status models.LinkStatus `json:"status" example:"agreed"`
}

// Validate validates the request.
func (r *StatusRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Status, validation.Required, validation.In(linkStatuses...)),
	)
}

// ModelRequest replaces the whole item/edge model.
type ModelRequest struct {
	Items []models.Item           `json:"items"`
	Edges []models.StructuralEdge `json:"edges"`
}

// Validate validates the request.
func (r *ModelRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Items, validation.Each(validation.By(validItem))),
		validation.Field(&r.Edges, validation.Each(validation.By(validEdge))),
	)
}

func validItem(value any) error {
	it, ok := value.(models.Item)
	if !ok {
		return errors.New("must be an item")
	}
	switch {
	case it.ID == "":
		return errors.New("id is required")
	case !it.Type.Valid():
		return fmt.Errorf("%s: unknown item type %q", it.ID, it.Type)
	case !version.Valid(it.Version):
		return fmt.Errorf("%s: invalid version %q", it.ID, it.Version)
	}
	return nil
}

func validEdge(value any) error {
	e, ok := value.(models.StructuralEdge)
	if !ok {
		return errors.New("must be an edge")
	}
	if e.Source == "" || e.Target == "" {
		return errors.New("source and target are required")
	}
	return nil
}

// DocumentRequest is the request body for PUT /documents/*.
type DocumentRequest struct {
	Content string `json:"content" example:"---\nid: R1\ntype: requirement\n---\n"`
}

// Validate validates the request.
func (r *DocumentRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Content, validation.Required),
	)
}

// LinkListResponse wraps link listings.
type LinkListResponse struct {
	Links []LinkView `json:"links"`
}

// HealthResponse wraps the aggregated health report.
type HealthResponse struct {
	Issues   []models.HealthIssue `json:"issues"`
	Coverage models.Coverage      `json:"coverage"`
}
