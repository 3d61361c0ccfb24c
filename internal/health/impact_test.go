package health

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/tracelight/internal/graph"
	"github.com/starford/tracelight/internal/models"
)

func TestImpactAnalysisDerivesChain(t *testing.T) {
	items := []models.Item{
		item("R1", models.ItemRequirement, "1.0"),
		item("R2", models.ItemRequirement, "1.0"),
		item("R3", models.ItemRequirement, "1.0"),
	}
	links := []models.RequirementLink{
		link("a", "R2", models.LinkDerives, "R1"),
		link("b", "R3", models.LinkDerives, "R2"),
	}
	got := New().ImpactAnalysis(graph.Build(items, nil, links), "R1", "2.0")
	if diff := cmp.Diff([]string{"R2", "R3"}, got.Downstream); diff != "" {
		t.Errorf("downstream (-want +got):\n%s", diff)
	}
	if len(got.Upstream) != 0 {
		t.Errorf("upstream = %v, want empty", got.Upstream)
	}
	if len(got.WouldBecomeStale) != 0 {
		t.Errorf("no pinned links, got %v", got.WouldBecomeStale)
	}
}

func TestImpactAnalysisUpstreamAndStaleCandidates(t *testing.T) {
	items := []models.Item{
		item("R1", models.ItemRequirement, "1.0"),
		item("F1", models.ItemFunction, "1.0"),
		item("T1", models.ItemTestCase, "1.0"),
		item("T2", models.ItemTestCase, "1.0"),
	}
	links := []models.RequirementLink{
		pinned(link("sat", "F1", models.LinkSatisfies, "R1"), "1.0", "1.0"),
		pinned(link("ver", "T1", models.LinkVerifies, "R1"), "1.0", "2.0"),
		link("ver2", "T2", models.LinkVerifies, "T1"),
		pinned(link("other", "T2", models.LinkRefines, "F1"), "1.0", "1.0"),
	}
	got := New().ImpactAnalysis(graph.Build(items, nil, links), "R1", "2.0")

	if diff := cmp.Diff([]string{"F1", "T2"}, got.Downstream); diff != "" {
		t.Errorf("downstream (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"T1", "T2"}, got.Upstream); diff != "" {
		t.Errorf("upstream (-want +got):\n%s", diff)
	}
	want := []models.StaleCandidate{{LinkID: "sat", Endpoint: models.EndpointTarget, PinnedVersion: "1.0", ProposedVersion: "2.0"}}
	if diff := cmp.Diff(want, got.WouldBecomeStale); diff != "" {
		t.Errorf("would become stale (-want +got):\n%s", diff)
	}
}

func TestImpactAnalysisTerminatesOnCycles(t *testing.T) {
	items := []models.Item{item("A", models.ItemRequirement, "1"), item("B", models.ItemRequirement, "1")}
	links := []models.RequirementLink{
		link("1", "A", models.LinkDerives, "B"),
		link("2", "B", models.LinkDerives, "A"),
	}
	got := New().ImpactAnalysis(graph.Build(items, nil, links), "A", "")
	if diff := cmp.Diff([]string{"B"}, got.Downstream); diff != "" {
		t.Errorf("downstream (-want +got):\n%s", diff)
	}
}

func TestImpactAnalysisUnknownItem(t *testing.T) {
	got := New().ImpactAnalysis(graph.Build(nil, nil, nil), "nope", "2.0")
	if got.Downstream == nil || got.Upstream == nil || got.WouldBecomeStale == nil {
		t.Errorf("unknown item should yield empty, non-nil sets: %+v", got)
	}
}

func TestImpactAnalysisFlagsProposalNotNewer(t *testing.T) {
	items := []models.Item{item("R1", models.ItemRequirement, "1.10")}
	v := graph.Build(items, nil, nil)

	for _, tt := range []struct {
		proposed string
		want     bool
	}{
		{"1.9", true},
		{"1.10", true},
		{"1.11", false},
		{"", false},
	} {
		got := New().ImpactAnalysis(v, "R1", tt.proposed)
		if got.NotNewer != tt.want {
			t.Errorf("proposed %q: notNewer = %v, want %v", tt.proposed, got.NotNewer, tt.want)
		}
		if got.LiveVersion != "1.10" {
			t.Errorf("live version = %q, want 1.10", got.LiveVersion)
		}
	}
}
