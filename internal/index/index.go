package index

import (
	"github.com/starford/tracelight/internal/models"
	"github.com/starford/tracelight/internal/traceservice"
)

// ModelIndex defines the persistence operations the host relies on.
// Consumers should depend on this interface rather than the concrete *DB.
type ModelIndex interface {
	UpsertDocument(d Document) error
	DeleteDocument(path string) (string, error)
	DocumentEntry(path string) (id, checksum string, err error)
	AllChecksums() (map[string]string, error)
	GetItem(id string) (*models.Item, error)
	AllItems() ([]models.Item, error)
	AllEdges() ([]models.StructuralEdge, error)
	ReplaceModel(items []models.Item, edges []models.StructuralEdge) error
	SearchItems(query string, limit int) ([]models.Item, error)
	UpsertLink(l models.RequirementLink) error
	DeleteLink(id string) error
	AllLinks() ([]models.RequirementLink, error)
	Close() error
}

// Verify *DB satisfies ModelIndex and serves as the facade's item source.
var (
	_ ModelIndex              = (*DB)(nil)
	_ traceservice.ItemSource = (*DB)(nil)
)
