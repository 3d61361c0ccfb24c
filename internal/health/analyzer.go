// Package health computes consistency findings over the item/link graph:
// orphans, circular dependencies, uncovered requirements, stale pins and
// version-change impact. Every check is a pure function of a graph.Views
// snapshot; nothing here mutates links or items.
package health

import (
	"fmt"
	"slices"
	"strings"

	"github.com/starford/tracelight/internal/graph"
	"github.com/starford/tracelight/internal/models"
	"github.com/starford/tracelight/internal/version"
)

// Analyzer runs the health checks. The zero value is not usable; use New.
type Analyzer struct {
	orphanExempt map[models.ItemType]struct{}
	coverers     map[models.ItemType]struct{}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithOrphanExemptTypes adds item types that are never reported as
// orphans. Floating connectors are always exempt.
func WithOrphanExemptTypes(types ...models.ItemType) Option {
	return func(a *Analyzer) {
		for _, t := range types {
			a.orphanExempt[t] = struct{}{}
		}
	}
}

// New returns an Analyzer with the default rules.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		orphanExempt: map[models.ItemType]struct{}{models.ItemConnector: {}},
		coverers: map[models.ItemType]struct{}{
			models.ItemTestCase:  {},
			models.ItemFunction:  {},
			models.ItemSubsystem: {},
			models.ItemSystem:    {},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FindOrphans returns, in input item order, the items with no structural
// edge and no requirement link at either endpoint.
func (a *Analyzer) FindOrphans(v *graph.Views) []string {
	out := []string{}
	for _, it := range v.Items.Items() {
		if _, exempt := a.orphanExempt[it.Type]; exempt {
			continue
		}
		if v.StructuralDegree(it.ID) == 0 && v.LinkCount(it.ID) == 0 {
			out = append(out, it.ID)
		}
	}
	return out
}

// FindUncoveredRequirements returns, in input item order, the requirements
// that no test case, function, subsystem or system verifies or satisfies.
func (a *Analyzer) FindUncoveredRequirements(v *graph.Views) []string {
	out := []string{}
	for _, it := range v.Items.Items() {
		if it.Type == models.ItemRequirement && !a.covered(v, it.ID) {
			out = append(out, it.ID)
		}
	}
	return out
}

func (a *Analyzer) covered(v *graph.Views, reqID string) bool {
	for _, l := range v.LinksFor(reqID) {
		if l.Target.ItemID != reqID {
			continue
		}
		if l.Type != models.LinkVerifies && l.Type != models.LinkSatisfies {
			continue
		}
		src, ok := v.Items.Item(l.Source.ItemID)
		if !ok {
			continue
		}
		if _, ok := a.coverers[src.Type]; ok {
			return true
		}
	}
	return false
}

// Coverage summarises FindUncoveredRequirements for the coverage meter.
func (a *Analyzer) Coverage(v *graph.Views) models.Coverage {
	var c models.Coverage
	for _, it := range v.Items.Items() {
		if it.Type == models.ItemRequirement {
			c.Total++
		}
	}
	c.Uncovered = len(a.FindUncoveredRequirements(v))
	c.Covered = c.Total - c.Uncovered
	if c.Total > 0 {
		c.Percent = float64(c.Covered) * 100 / float64(c.Total)
	}
	return c
}

// StalePins reports one critical issue for every pinned endpoint whose
// pinned version no longer equals the live item version.
func (a *Analyzer) StalePins(v *graph.Views) []models.HealthIssue {
	out := []models.HealthIssue{}
	for _, l := range v.Links() {
		if !l.Pinned() {
			continue
		}
		for _, pos := range []models.Endpoint{models.EndpointSource, models.EndpointTarget} {
			ep := l.Endpoint(pos)
			it, ok := v.Items.Item(ep.ItemID)
			if !ok || version.Equal(*ep.PinnedVersion, it.Version) {
				continue
			}
			out = append(out, models.HealthIssue{
				Severity: models.SeverityCritical,
				Type:     models.IssueStalePin,
				Message: fmt.Sprintf("link %s: %s %s is pinned at %s but is now at %s",
					l.ID, pos, ep.ItemID, *ep.PinnedVersion, it.Version),
				RelatedItemIDs: []string{l.Source.ItemID, l.Target.ItemID},
				RelatedLinkID:  l.ID,
				Endpoint:       pos,
				PinnedVersion:  *ep.PinnedVersion,
				LiveVersion:    it.Version,
			})
		}
	}
	return out
}

// DanglingLinks reports links whose endpoints reference unknown items.
// Item ids are not checked when a link is created, so this is where they
// get validated.
func (a *Analyzer) DanglingLinks(v *graph.Views) []models.HealthIssue {
	out := []models.HealthIssue{}
	if v.Items.Len() == 0 {
		return out
	}
	for _, l := range v.Links() {
		var missing []string
		for _, id := range []string{l.Source.ItemID, l.Target.ItemID} {
			if !v.Items.Has(id) {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			continue
		}
		out = append(out, models.HealthIssue{
			Severity:       models.SeverityWarning,
			Type:           models.IssueDanglingLink,
			Message:        fmt.Sprintf("link %s references unknown item(s) %s", l.ID, strings.Join(missing, ", ")),
			RelatedItemIDs: []string{l.Source.ItemID, l.Target.ItemID},
			RelatedLinkID:  l.ID,
		})
	}
	return out
}

// RunHealthChecks aggregates every check into one issue list: stale pins
// first (critical), then dangling links, orphans, cycles and uncovered
// requirements (warnings).
func (a *Analyzer) RunHealthChecks(v *graph.Views) []models.HealthIssue {
	issues := a.StalePins(v)
	issues = append(issues, a.DanglingLinks(v)...)

	for _, id := range a.FindOrphans(v) {
		issues = append(issues, models.HealthIssue{
			Severity:       models.SeverityWarning,
			Type:           models.IssueOrphan,
			Message:        fmt.Sprintf("%s has no structural edges and no traceability links", describe(v, id)),
			RelatedItemIDs: []string{id},
		})
	}
	for _, cycle := range a.FindCircularDeps(v) {
		issues = append(issues, models.HealthIssue{
			Severity:       models.SeverityWarning,
			Type:           models.IssueCircularDependency,
			Message:        "circular dependency: " + strings.Join(cycle, " -> "),
			RelatedItemIDs: slices.Clone(cycle[:len(cycle)-1]),
		})
	}
	for _, id := range a.FindUncoveredRequirements(v) {
		issues = append(issues, models.HealthIssue{
			Severity:       models.SeverityWarning,
			Type:           models.IssueUncoveredRequirement,
			Message:        fmt.Sprintf("%s is not verified or satisfied by any test case, function, subsystem or system", describe(v, id)),
			RelatedItemIDs: []string{id},
		})
	}
	return issues
}

// EffectiveStatus overlays the derived broken status on a stored link: a
// pinned link with a stale endpoint reads as broken until it is repinned
// or unpinned.
func EffectiveStatus(l models.RequirementLink, items graph.ItemIndex) models.LinkStatus {
	if !l.Pinned() {
		return l.Status
	}
	for _, ep := range []models.LinkEndpoint{l.Source, l.Target} {
		if it, ok := items.Item(ep.ItemID); ok && !version.Equal(*ep.PinnedVersion, it.Version) {
			return models.StatusBroken
		}
	}
	return l.Status
}

func describe(v *graph.Views, id string) string {
	it, ok := v.Items.Item(id)
	if !ok {
		return id
	}
	name := it.ID
	switch {
	case it.ReqID != "" && it.Label != "":
		name = fmt.Sprintf("%s (%s %s)", it.ID, it.ReqID, it.Label)
	case it.Label != "":
		name = fmt.Sprintf("%s (%s)", it.ID, it.Label)
	}
	return fmt.Sprintf("%s %s", it.Type, name)
}
