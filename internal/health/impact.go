package health

import (
	"github.com/starford/tracelight/internal/graph"
	"github.com/starford/tracelight/internal/models"
	"github.com/starford/tracelight/internal/version"
)

var (
	downstreamTypes = []models.LinkType{models.LinkDerives, models.LinkSatisfies, models.LinkRefines}
	upstreamTypes   = []models.LinkType{models.LinkVerifies}
)

// ImpactAnalysis computes which items a version change of itemID reaches.
//
// Downstream items are the consumers that derive from, satisfy or refine
// the item, followed transitively. Upstream items are those that verify it,
// followed transitively. Both walks are breadth-first with a visited set,
// so cyclic graphs terminate; results are in discovery order.
//
// WouldBecomeStale lists the pinned links touching itemID whose pin on it
// differs from proposedVersion: the stale-pin predicate applied to the
// proposed version instead of the live one. An empty proposedVersion
// means "any change" and lists every pinned link touching the item.
// NotNewer flags a proposedVersion that does not order after the live
// version. Unknown items yield an empty analysis.
func (a *Analyzer) ImpactAnalysis(v *graph.Views, itemID, proposedVersion string) models.ImpactAnalysis {
	res := models.ImpactAnalysis{
		ItemID:           itemID,
		ProposedVersion:  proposedVersion,
		Downstream:       []string{},
		Upstream:         []string{},
		WouldBecomeStale: []models.StaleCandidate{},
	}
	it, ok := v.Items.Item(itemID)
	if !ok {
		return res
	}
	res.LiveVersion = it.Version
	res.NotNewer = proposedVersion != "" && !version.Less(it.Version, proposedVersion)

	res.Downstream = walk(itemID, func(id string) []string { return v.Predecessors(id, downstreamTypes...) })
	res.Upstream = walk(itemID, func(id string) []string { return v.Predecessors(id, upstreamTypes...) })

	for _, l := range v.Links() {
		if !l.Pinned() {
			continue
		}
		for _, pos := range []models.Endpoint{models.EndpointSource, models.EndpointTarget} {
			ep := l.Endpoint(pos)
			if ep.ItemID != itemID {
				continue
			}
			if proposedVersion != "" && version.Equal(*ep.PinnedVersion, proposedVersion) {
				continue
			}
			res.WouldBecomeStale = append(res.WouldBecomeStale, models.StaleCandidate{
				LinkID:          l.ID,
				Endpoint:        pos,
				PinnedVersion:   *ep.PinnedVersion,
				ProposedVersion: proposedVersion,
			})
		}
	}
	return res
}

func walk(start string, next func(string) []string) []string {
	out := []string{}
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next(cur) {
			if visited[n] {
				continue
			}
			visited[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}
	return out
}
