// Package traceservice is the query facade over the link store and the
// health analyzer. Every query rebuilds the graph views from the current
// items, edges and links; nothing derived is cached between calls.
package traceservice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/tracelight/internal/apperr"
	"github.com/starford/tracelight/internal/graph"
	"github.com/starford/tracelight/internal/health"
	"github.com/starford/tracelight/internal/linkstore"
	"github.com/starford/tracelight/internal/models"
)

// ItemSource supplies the canvas-owned items and structural edges.
type ItemSource interface {
	AllItems() ([]models.Item, error)
	AllEdges() ([]models.StructuralEdge, error)
	SearchItems(query string, limit int) ([]models.Item, error)
	ReplaceModel(items []models.Item, edges []models.StructuralEdge) error
}

// LinkView is a link as rendered by panels: the stored record plus the
// derived pinned flag and the status with the broken overlay applied.
type LinkView struct {
	models.RequirementLink
	Pinned          bool              `json:"pinned"`
	EffectiveStatus models.LinkStatus `json:"effectiveStatus"`
}

// Hierarchy places an item in the containment forest and lists the items
// it is in a conflicts relationship with.
type Hierarchy struct {
	ItemID    string   `json:"itemId"`
	Parent    string   `json:"parent,omitempty"`
	Children  []string `json:"children"`
	Conflicts []string `json:"conflicts"`
}

// BaselineResult is the per-link outcome of a baseline, with errors
// flattened for rendering.
type BaselineResult struct {
	LinkID string `json:"linkId"`
	Pinned bool   `json:"pinned"`
	Error  string `json:"error,omitempty"`
}

// Service coordinates the link store, the item source and the analyzer.
type Service struct {
	links    *linkstore.Store
	items    ItemSource
	analyzer *health.Analyzer
	logger   *slog.Logger
}

// NewService creates a new query facade.
func NewService(links *linkstore.Store, items ItemSource, analyzer *health.Analyzer, logger *slog.Logger) *Service {
	if analyzer == nil {
		analyzer = health.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{links: links, items: items, analyzer: analyzer, logger: logger}
}

// model loads the current items and edges. Load failures degrade to an
// empty model so that analyses stay safe to run during rendering.
func (s *Service) model() ([]models.Item, []models.StructuralEdge) {
	items, err := s.items.AllItems()
	if err != nil {
		s.logger.Warn("traceservice: load items failed", slog.String("error", err.Error()))
		items = nil
	}
	edges, err := s.items.AllEdges()
	if err != nil {
		s.logger.Warn("traceservice: load edges failed", slog.String("error", err.Error()))
		edges = nil
	}
	return items, edges
}

func (s *Service) views() *graph.Views {
	items, edges := s.model()
	return graph.Build(items, edges, s.links.List())
}

func view(l models.RequirementLink, idx graph.ItemIndex) LinkView {
	return LinkView{
		RequirementLink: l,
		Pinned:          l.Pinned(),
		EffectiveStatus: health.EffectiveStatus(l, idx),
	}
}

func (s *Service) viewOf(l models.RequirementLink) LinkView {
	items, _ := s.model()
	return view(l, graph.NewItemIndex(items))
}

// Items returns the current items.
func (s *Service) Items(_ context.Context) ([]models.Item, error) {
	items, err := s.items.AllItems()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(items), nil
}

// Edges returns the current structural edges.
func (s *Service) Edges(_ context.Context) ([]models.StructuralEdge, error) {
	edges, err := s.items.AllEdges()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(edges), nil
}

// ReplaceModel swaps the whole item/edge collection, as the canvas does on
// load or undo. Links are left untouched.
func (s *Service) ReplaceModel(_ context.Context, items []models.Item, edges []models.StructuralEdge) error {
	return s.items.ReplaceModel(items, edges)
}

// SearchItems delegates item search to the item source.
func (s *Service) SearchItems(_ context.Context, query string, limit int) ([]models.Item, error) {
	items, err := s.items.SearchItems(query, limit)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(items), nil
}

// GetLinksForNode returns the links touching itemID. Unknown or unlinked
// items yield an empty list.
func (s *Service) GetLinksForNode(_ context.Context, itemID string) []LinkView {
	v := s.views()
	links := v.LinksFor(itemID)
	out := make([]LinkView, len(links))
	for i, l := range links {
		out[i] = view(l, v.Items)
	}
	return out
}

// ListLinks returns every link in store order.
func (s *Service) ListLinks(_ context.Context) []LinkView {
	v := s.views()
	out := make([]LinkView, 0, len(v.Links()))
	for _, l := range v.Links() {
		out = append(out, view(l, v.Items))
	}
	return out
}

// GetLink returns one link.
func (s *Service) GetLink(_ context.Context, id string) (LinkView, error) {
	l, err := s.links.Get(id)
	if err != nil {
		return LinkView{}, err
	}
	return s.viewOf(l), nil
}

// RunHealthChecks returns the aggregated issue list.
func (s *Service) RunHealthChecks(_ context.Context) []models.HealthIssue {
	return s.analyzer.RunHealthChecks(s.views())
}

// FindOrphans returns the ids of unconnected items.
func (s *Service) FindOrphans(_ context.Context) []string {
	return s.analyzer.FindOrphans(s.views())
}

// FindCircularDeps returns the cycles of the traceability digraph.
func (s *Service) FindCircularDeps(_ context.Context) [][]string {
	return s.analyzer.FindCircularDeps(s.views())
}

// FindUncoveredRequirements returns the requirements lacking coverage.
func (s *Service) FindUncoveredRequirements(_ context.Context) []string {
	return s.analyzer.FindUncoveredRequirements(s.views())
}

// Coverage returns the requirement coverage summary.
func (s *Service) Coverage(_ context.Context) models.Coverage {
	return s.analyzer.Coverage(s.views())
}

// GetImpactAnalysis reports what a version change of itemID would reach.
func (s *Service) GetImpactAnalysis(_ context.Context, itemID, proposedVersion string) (models.ImpactAnalysis, error) {
	v := s.views()
	if !v.Items.Has(itemID) {
		return models.ImpactAnalysis{}, fmt.Errorf("%w: %s", apperr.ErrItemNotFound, itemID)
	}
	return s.analyzer.ImpactAnalysis(v, itemID, proposedVersion), nil
}

// GetHierarchy returns the containment parent and children of itemID and
// the items it conflicts with.
func (s *Service) GetHierarchy(_ context.Context, itemID string) (Hierarchy, error) {
	v := s.views()
	if !v.Items.Has(itemID) {
		return Hierarchy{}, fmt.Errorf("%w: %s", apperr.ErrItemNotFound, itemID)
	}
	h := Hierarchy{
		ItemID:    itemID,
		Children:  v.ChildrenOf(itemID),
		Conflicts: v.Conflicts(itemID),
	}
	h.Parent, _ = v.ParentOf(itemID)
	h.Children = nonNilSlice(h.Children)
	h.Conflicts = nonNilSlice(h.Conflicts)
	return h, nil
}

// AddLink creates a new proposed, floating link.
func (s *Service) AddLink(_ context.Context, req linkstore.AddRequest) (LinkView, error) {
	l, err := s.links.Add(req)
	if err != nil {
		return LinkView{}, err
	}
	return s.viewOf(l), nil
}

// RemoveLink deletes a link; unknown ids are ignored.
func (s *Service) RemoveLink(_ context.Context, id string) {
	s.links.Remove(id)
}

// UpdateLink edits notes and/or type.
func (s *Service) UpdateLink(_ context.Context, id string, req linkstore.UpdateRequest) (LinkView, error) {
	l, err := s.links.Update(id, req)
	if err != nil {
		return LinkView{}, err
	}
	return s.viewOf(l), nil
}

// UpdateLinkStatus moves a link through its lifecycle.
func (s *Service) UpdateLinkStatus(_ context.Context, id string, status models.LinkStatus) (LinkView, error) {
	l, err := s.links.UpdateStatus(id, status)
	if err != nil {
		return LinkView{}, err
	}
	return s.viewOf(l), nil
}

// PinLink pins a link at the current versions of its endpoint items.
func (s *Service) PinLink(_ context.Context, id string) (LinkView, error) {
	items, _ := s.model()
	idx := graph.NewItemIndex(items)
	l, err := s.links.Pin(id, idx)
	if err != nil {
		return LinkView{}, err
	}
	return view(l, idx), nil
}

// UnpinLink returns a link to floating.
func (s *Service) UnpinLink(_ context.Context, id string) (LinkView, error) {
	l, err := s.links.Unpin(id)
	if err != nil {
		return LinkView{}, err
	}
	return s.viewOf(l), nil
}

// BaselineAllLinks pins every unpinned link and reports each outcome.
func (s *Service) BaselineAllLinks(_ context.Context) []BaselineResult {
	items, _ := s.model()
	outcomes := s.links.Baseline(graph.NewItemIndex(items))
	out := make([]BaselineResult, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		out[i] = BaselineResult{LinkID: o.LinkID, Pinned: o.Pinned}
		if o.Err != nil {
			out[i].Error = o.Err.Error()
			failed++
		}
	}
	s.logger.Info("traceservice: baseline applied",
		slog.Int("attempted", len(out)),
		slog.Int("failed", failed))
	return out
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
