// Package models defines the domain types for Tracelight.
package models

import "time"

// ItemType classifies an item on the systems canvas.
type ItemType string

// Item types supplied by the canvas.
const (
	ItemSystem      ItemType = "system"
	ItemSubsystem   ItemType = "subsystem"
	ItemFunction    ItemType = "function"
	ItemRequirement ItemType = "requirement"
	ItemTestCase    ItemType = "testcase"
	ItemParameter   ItemType = "parameter"
	ItemHardware    ItemType = "hardware"
	ItemUseCase     ItemType = "usecase"
	ItemActor       ItemType = "actor"

	// ItemConnector is a transient UI-only floating connector. It never
	// counts as an orphan.
	ItemConnector ItemType = "connector"
)

var itemTypes = map[ItemType]struct{}{
	ItemSystem: {}, ItemSubsystem: {}, ItemFunction: {}, ItemRequirement: {},
	ItemTestCase: {}, ItemParameter: {}, ItemHardware: {}, ItemUseCase: {},
	ItemActor: {}, ItemConnector: {},
}

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	_, ok := itemTypes[t]
	return ok
}

// Item is a typed, versioned unit in the systems model. Items are owned by
// the canvas; the engine only reads them.
type Item struct {
	ID      string   `json:"id" yaml:"id"`
	Type    ItemType `json:"itemType" yaml:"type"`
	Version string   `json:"version" yaml:"version"`
	Label   string   `json:"label,omitempty" yaml:"label,omitempty"`
	ReqID   string   `json:"reqId,omitempty" yaml:"req_id,omitempty"`
}

// Structural relation types.
const (
	RelationContains = "contains"
	RelationProvides = "provides"
	RelationFlow     = "flow"
	RelationRelated  = "related"
)

// StructuralEdge is a hierarchy or flow connection drawn on the canvas.
type StructuralEdge struct {
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	RelationType string `json:"relationType" yaml:"relation"`
}

// IsContainment reports whether the edge builds the parent/child hierarchy.
func (e StructuralEdge) IsContainment() bool {
	return e.RelationType == RelationContains || e.RelationType == RelationProvides
}

// DocumentMetadata is a lightweight representation of an item document on
// disk, returned by storage list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
