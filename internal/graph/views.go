// Package graph builds the read-only indices every analysis runs over:
// an item index, the containment forest, the traceability digraph, the
// undirected conflicts adjacency and a per-item link index.
//
// Views are ephemeral. They are rebuilt from the caller's current items,
// edges and links on every query and never hold on to the caller's slices,
// so a host that swaps its item collection wholesale (undo, reload) can
// never leave a view pointing at stale data.
package graph

import (
	"slices"

	"github.com/starford/tracelight/internal/models"
)

// ItemIndex maps item ids to items for the duration of one query.
type ItemIndex struct {
	byID  map[string]models.Item
	order []string
}

// NewItemIndex indexes items by id. Later duplicates of an id are ignored
// so that input order stays authoritative.
func NewItemIndex(items []models.Item) ItemIndex {
	idx := ItemIndex{
		byID:  make(map[string]models.Item, len(items)),
		order: make([]string, 0, len(items)),
	}
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		if _, dup := idx.byID[it.ID]; dup {
			continue
		}
		idx.byID[it.ID] = it
		idx.order = append(idx.order, it.ID)
	}
	return idx
}

// Item returns the item with the given id.
func (x ItemIndex) Item(id string) (models.Item, bool) {
	it, ok := x.byID[id]
	return it, ok
}

// Has reports whether id is a known item.
func (x ItemIndex) Has(id string) bool {
	_, ok := x.byID[id]
	return ok
}

// Len returns the number of indexed items.
func (x ItemIndex) Len() int { return len(x.order) }

// Items returns the indexed items in input order.
func (x ItemIndex) Items() []models.Item {
	out := make([]models.Item, len(x.order))
	for i, id := range x.order {
		out[i] = x.byID[id]
	}
	return out
}

type arc struct {
	peer     string
	linkType models.LinkType
}

// Views bundles the derived adjacency structures for one query.
type Views struct {
	Items ItemIndex

	children   map[string][]string
	parents    map[string][]string
	structural map[string]int

	out       map[string][]arc
	in        map[string][]arc
	conflicts map[string][]string

	links       []models.RequirementLink
	linksByItem map[string][]models.RequirementLink
}

// Build derives all views in one pass over edges and one over links.
// Links whose endpoints are not known items are kept in the link index but
// left out of the traceability digraph and the conflicts adjacency.
func Build(items []models.Item, edges []models.StructuralEdge, links []models.RequirementLink) *Views {
	v := &Views{
		Items:       NewItemIndex(items),
		children:    make(map[string][]string),
		parents:     make(map[string][]string),
		structural:  make(map[string]int),
		out:         make(map[string][]arc),
		in:          make(map[string][]arc),
		conflicts:   make(map[string][]string),
		links:       make([]models.RequirementLink, 0, len(links)),
		linksByItem: make(map[string][]models.RequirementLink),
	}

	for _, e := range edges {
		if e.Source == "" || e.Target == "" {
			continue
		}
		v.structural[e.Source]++
		if e.Target != e.Source {
			v.structural[e.Target]++
		}
		if e.IsContainment() {
			v.children[e.Source] = append(v.children[e.Source], e.Target)
			v.parents[e.Target] = append(v.parents[e.Target], e.Source)
		}
	}

	for _, l := range links {
		l = l.Clone()
		v.links = append(v.links, l)
		v.linksByItem[l.Source.ItemID] = append(v.linksByItem[l.Source.ItemID], l)
		if l.Target.ItemID != l.Source.ItemID {
			v.linksByItem[l.Target.ItemID] = append(v.linksByItem[l.Target.ItemID], l)
		}

		src, dst := l.Source.ItemID, l.Target.ItemID
		if src == dst || !v.Items.Has(src) || !v.Items.Has(dst) {
			continue
		}
		switch {
		case l.Type == models.LinkConflicts:
			v.conflicts[src] = append(v.conflicts[src], dst)
			v.conflicts[dst] = append(v.conflicts[dst], src)
		case l.Type.Directed():
			v.out[src] = append(v.out[src], arc{peer: dst, linkType: l.Type})
			v.in[dst] = append(v.in[dst], arc{peer: src, linkType: l.Type})
		}
	}
	return v
}

// ParentOf returns the first containment parent of id.
func (v *Views) ParentOf(id string) (string, bool) {
	p := v.parents[id]
	if len(p) == 0 {
		return "", false
	}
	return p[0], true
}

// ChildrenOf returns the containment children of id in edge order.
func (v *Views) ChildrenOf(id string) []string {
	return slices.Clone(v.children[id])
}

// StructuralDegree counts the structural edges of any relation type that
// touch id.
func (v *Views) StructuralDegree(id string) int {
	return v.structural[id]
}

// Successors returns the distinct digraph targets of id, ascending. When
// types are given only arcs of those link types are followed.
func (v *Views) Successors(id string, types ...models.LinkType) []string {
	return peers(v.out[id], types)
}

// Predecessors returns the distinct digraph sources pointing at id,
// ascending, optionally filtered by link type.
func (v *Views) Predecessors(id string, types ...models.LinkType) []string {
	return peers(v.in[id], types)
}

// Conflicts returns the items in a conflicts relationship with id,
// ascending.
func (v *Views) Conflicts(id string) []string {
	out := slices.Clone(v.conflicts[id])
	slices.Sort(out)
	return slices.Compact(out)
}

// Nodes returns every item taking part in the traceability digraph,
// ascending by id.
func (v *Views) Nodes() []string {
	seen := make(map[string]struct{}, len(v.out)+len(v.in))
	for id := range v.out {
		seen[id] = struct{}{}
	}
	for id := range v.in {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Links returns all links in store order.
func (v *Views) Links() []models.RequirementLink {
	return v.links
}

// LinksFor returns the links with id at either endpoint, in store order.
// Unknown or unlinked items yield an empty slice.
func (v *Views) LinksFor(id string) []models.RequirementLink {
	if !v.Items.Has(id) {
		return []models.RequirementLink{}
	}
	out := make([]models.RequirementLink, len(v.linksByItem[id]))
	copy(out, v.linksByItem[id])
	return out
}

// LinkCount counts links with id at either endpoint, whether or not the
// other endpoint is a known item.
func (v *Views) LinkCount(id string) int {
	return len(v.linksByItem[id])
}

func peers(arcs []arc, types []models.LinkType) []string {
	out := make([]string, 0, len(arcs))
	for _, a := range arcs {
		if len(types) > 0 && !slices.Contains(types, a.linkType) {
			continue
		}
		out = append(out, a.peer)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
