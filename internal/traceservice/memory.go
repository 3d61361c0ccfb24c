package traceservice

import (
	"slices"
	"strings"
	"sync"

	"github.com/starford/tracelight/internal/models"
)

// MemorySource is an in-memory ItemSource, used when the host pushes its
// model over the API instead of keeping item documents on disk.
type MemorySource struct {
	mu    sync.RWMutex
	items []models.Item
	edges []models.StructuralEdge
}

// NewMemorySource creates a source holding the given model.
func NewMemorySource(items []models.Item, edges []models.StructuralEdge) *MemorySource {
	return &MemorySource{items: slices.Clone(items), edges: slices.Clone(edges)}
}

// AllItems returns a copy of the items.
func (m *MemorySource) AllItems() ([]models.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.items), nil
}

// AllEdges returns a copy of the edges.
func (m *MemorySource) AllEdges() ([]models.StructuralEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.edges), nil
}

// SearchItems matches query case-insensitively against id, label and
// requirement id.
func (m *MemorySource) SearchItems(query string, limit int) ([]models.Item, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(query)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Item
	for _, it := range m.items {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(it.ID), q) ||
			strings.Contains(strings.ToLower(it.Label), q) ||
			strings.Contains(strings.ToLower(it.ReqID), q) {
			out = append(out, it)
		}
	}
	return out, nil
}

// ReplaceModel swaps the whole model.
func (m *MemorySource) ReplaceModel(items []models.Item, edges []models.StructuralEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = slices.Clone(items)
	m.edges = slices.Clone(edges)
	return nil
}

// SetVersion changes the version of one item, as an edit on the canvas
// would.
func (m *MemorySource) SetVersion(id, v string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].Version = v
			return true
		}
	}
	return false
}
