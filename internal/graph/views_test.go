package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/tracelight/internal/models"
)

func link(id, src string, lt models.LinkType, dst string) models.RequirementLink {
	return models.RequirementLink{
		ID:     id,
		Type:   lt,
		Source: models.LinkEndpoint{ItemID: src},
		Target: models.LinkEndpoint{ItemID: dst},
		Status: models.StatusProposed,
	}
}

func fixture() *Views {
	items := []models.Item{
		{ID: "S1", Type: models.ItemSystem, Version: "1.0"},
		{ID: "SS1", Type: models.ItemSubsystem, Version: "1.0"},
		{ID: "R1", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "R2", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "T1", Type: models.ItemTestCase, Version: "1.0"},
		{ID: "R1", Type: models.ItemActor, Version: "9.9"}, // duplicate id ignored
	}
	edges := []models.StructuralEdge{
		{Source: "S1", Target: "SS1", RelationType: models.RelationContains},
		{Source: "SS1", Target: "R1", RelationType: models.RelationProvides},
		{Source: "T1", Target: "R2", RelationType: models.RelationFlow},
	}
	links := []models.RequirementLink{
		link("l1", "T1", models.LinkVerifies, "R1"),
		link("l2", "R2", models.LinkDerives, "R1"),
		link("l3", "R1", models.LinkConflicts, "R2"),
		link("l4", "R2", models.LinkRefines, "ghost"),
		link("l5", "R2", models.LinkSatisfies, "R1"),
	}
	return Build(items, edges, links)
}

func TestItemIndex(t *testing.T) {
	v := fixture()
	if v.Items.Len() != 5 {
		t.Fatalf("len = %d, want 5", v.Items.Len())
	}
	it, ok := v.Items.Item("R1")
	if !ok || it.Type != models.ItemRequirement {
		t.Errorf("R1 = %+v, %v; first occurrence should win", it, ok)
	}
	if v.Items.Has("ghost") {
		t.Error("ghost should be unknown")
	}
}

func TestContainmentForest(t *testing.T) {
	v := fixture()
	if p, ok := v.ParentOf("R1"); !ok || p != "SS1" {
		t.Errorf("ParentOf(R1) = %q, %v", p, ok)
	}
	if _, ok := v.ParentOf("S1"); ok {
		t.Error("S1 is a root")
	}
	if diff := cmp.Diff([]string{"SS1"}, v.ChildrenOf("S1")); diff != "" {
		t.Errorf("ChildrenOf(S1):\n%s", diff)
	}
	if _, ok := v.ParentOf("R2"); ok {
		t.Error("flow edges must not build the hierarchy")
	}
	if v.StructuralDegree("R2") != 1 || v.StructuralDegree("SS1") != 2 {
		t.Errorf("degrees R2=%d SS1=%d", v.StructuralDegree("R2"), v.StructuralDegree("SS1"))
	}
}

func TestTraceabilityDigraph(t *testing.T) {
	v := fixture()
	if diff := cmp.Diff([]string{"R1"}, v.Successors("R2")); diff != "" {
		t.Errorf("Successors(R2) should dedupe derives+satisfies and drop dangling refines:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"R2", "T1"}, v.Predecessors("R1")); diff != "" {
		t.Errorf("Predecessors(R1):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"T1"}, v.Predecessors("R1", models.LinkVerifies)); diff != "" {
		t.Errorf("Predecessors(R1, verifies):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"R1", "R2", "T1"}, v.Nodes()); diff != "" {
		t.Errorf("Nodes:\n%s", diff)
	}
}

func TestConflictsAreUndirectedAndOutsideDigraph(t *testing.T) {
	v := fixture()
	if diff := cmp.Diff([]string{"R2"}, v.Conflicts("R1")); diff != "" {
		t.Errorf("Conflicts(R1):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"R1"}, v.Conflicts("R2")); diff != "" {
		t.Errorf("Conflicts(R2):\n%s", diff)
	}
	for _, s := range v.Successors("R1") {
		if s == "R2" {
			t.Error("conflicts link leaked into the digraph")
		}
	}
}

func TestLinksFor(t *testing.T) {
	v := fixture()
	var ids []string
	for _, l := range v.LinksFor("R2") {
		ids = append(ids, l.ID)
	}
	if diff := cmp.Diff([]string{"l2", "l3", "l4", "l5"}, ids); diff != "" {
		t.Errorf("LinksFor(R2):\n%s", diff)
	}
	if got := v.LinksFor("ghost"); len(got) != 0 {
		t.Errorf("unknown item should have no links, got %d", len(got))
	}
	if got := v.LinksFor("S1"); got == nil || len(got) != 0 {
		t.Errorf("unlinked item should yield an empty slice, got %#v", got)
	}
}
