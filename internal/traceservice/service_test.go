package traceservice

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/starford/tracelight/internal/apperr"
	"github.com/starford/tracelight/internal/health"
	"github.com/starford/tracelight/internal/linkstore"
	"github.com/starford/tracelight/internal/models"
)

func testService(t *testing.T, items []models.Item, edges []models.StructuralEdge) (*Service, *MemorySource) {
	t.Helper()
	src := NewMemorySource(items, edges)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewService(linkstore.New(), src, health.New(), logger), src
}

func scenarioItems() []models.Item {
	return []models.Item{
		{ID: "S1", Type: models.ItemSystem, Version: "1.0"},
		{ID: "R1", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "T1", Type: models.ItemTestCase, Version: "1.0"},
	}
}

func scenarioEdges() []models.StructuralEdge {
	return []models.StructuralEdge{
		{Source: "S1", Target: "R1", RelationType: models.RelationContains},
		{Source: "S1", Target: "T1", RelationType: models.RelationContains},
	}
}

func TestStalePinLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, src := testService(t, scenarioItems(), scenarioEdges())

	l, err := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "T1", TargetItemID: "R1", Type: models.LinkVerifies, Author: "alice"})
	if err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	if _, err := svc.PinLink(ctx, l.ID); err != nil {
		t.Fatalf("PinLink: %v", err)
	}
	if issues := svc.RunHealthChecks(ctx); len(issues) != 0 {
		t.Fatalf("healthy model reported issues: %+v", issues)
	}

	src.SetVersion("R1", "1.1")
	issues := svc.RunHealthChecks(ctx)
	if len(issues) != 1 {
		t.Fatalf("issues = %+v, want exactly one", issues)
	}
	is := issues[0]
	if is.Severity != models.SeverityCritical || is.Type != models.IssueStalePin ||
		is.RelatedLinkID != l.ID || is.PinnedVersion != "1.0" || is.LiveVersion != "1.1" ||
		!cmp.Equal(is.RelatedItemIDs, []string{"T1", "R1"}) {
		t.Errorf("unexpected issue: %+v", is)
	}

	got, _ := svc.GetLink(ctx, l.ID)
	if got.EffectiveStatus != models.StatusBroken || got.Status != models.StatusProposed {
		t.Errorf("status = %s, effective = %s", got.Status, got.EffectiveStatus)
	}

	if _, err := svc.PinLink(ctx, l.ID); err != nil {
		t.Fatalf("repin: %v", err)
	}
	if issues := svc.RunHealthChecks(ctx); len(issues) != 0 {
		t.Errorf("repinning should clear the stale pin: %+v", issues)
	}
}

func TestUnpinClearsBrokenOverlay(t *testing.T) {
	ctx := context.Background()
	svc, src := testService(t, scenarioItems(), scenarioEdges())
	l, _ := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "T1", TargetItemID: "R1", Type: models.LinkVerifies})
	_, _ = svc.PinLink(ctx, l.ID)
	src.SetVersion("T1", "2.0")

	got, err := svc.UnpinLink(ctx, l.ID)
	if err != nil {
		t.Fatalf("UnpinLink: %v", err)
	}
	if got.Pinned || got.EffectiveStatus != models.StatusProposed {
		t.Errorf("unpinned link = %+v", got)
	}
}

func TestGetLinksForNode(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, scenarioItems(), scenarioEdges())
	a, _ := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "T1", TargetItemID: "R1", Type: models.LinkVerifies})
	b, _ := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "S1", TargetItemID: "R1", Type: models.LinkSatisfies})

	var ids []string
	for _, l := range svc.GetLinksForNode(ctx, "R1") {
		ids = append(ids, l.ID)
	}
	if diff := cmp.Diff([]string{a.ID, b.ID}, ids); diff != "" {
		t.Errorf("links for R1 (-want +got):\n%s", diff)
	}
	if got := svc.GetLinksForNode(ctx, "nobody"); got == nil || len(got) != 0 {
		t.Errorf("unknown item: got %#v, want empty", got)
	}
}

func TestGetHierarchy(t *testing.T) {
	ctx := context.Background()
	items := append(scenarioItems(), models.Item{ID: "R2", Type: models.ItemRequirement, Version: "1.0"})
	svc, _ := testService(t, items, scenarioEdges())
	if _, err := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "R2", TargetItemID: "R1", Type: models.LinkConflicts}); err != nil {
		t.Fatal(err)
	}

	got, err := svc.GetHierarchy(ctx, "R1")
	if err != nil {
		t.Fatal(err)
	}
	want := Hierarchy{ItemID: "R1", Parent: "S1", Children: []string{}, Conflicts: []string{"R2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("R1 hierarchy (-want +got):\n%s", diff)
	}

	root, _ := svc.GetHierarchy(ctx, "S1")
	if diff := cmp.Diff([]string{"R1", "T1"}, root.Children); diff != "" {
		t.Errorf("S1 children (-want +got):\n%s", diff)
	}
	if root.Parent != "" || len(root.Conflicts) != 0 {
		t.Errorf("S1 hierarchy = %+v", root)
	}

	if _, err := svc.GetHierarchy(ctx, "nobody"); !errors.Is(err, apperr.ErrItemNotFound) {
		t.Errorf("unknown item err = %v", err)
	}
}

func TestCoverageFollowsLinks(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, scenarioItems(), scenarioEdges())

	if diff := cmp.Diff([]string{"R1"}, svc.FindUncoveredRequirements(ctx)); diff != "" {
		t.Errorf("uncovered before link:\n%s", diff)
	}
	l, _ := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "T1", TargetItemID: "R1", Type: models.LinkVerifies})
	if got := svc.FindUncoveredRequirements(ctx); len(got) != 0 {
		t.Errorf("R1 should be covered: %v", got)
	}
	svc.RemoveLink(ctx, l.ID)
	if diff := cmp.Diff([]string{"R1"}, svc.FindUncoveredRequirements(ctx)); diff != "" {
		t.Errorf("uncovered after removal:\n%s", diff)
	}
}

func TestImpactAnalysisScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, []models.Item{
		{ID: "R1", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "R2", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "R3", Type: models.ItemRequirement, Version: "1.0"},
	}, nil)
	_, _ = svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "R2", TargetItemID: "R1", Type: models.LinkDerives})
	_, _ = svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "R3", TargetItemID: "R2", Type: models.LinkDerives})

	res, err := svc.GetImpactAnalysis(ctx, "R1", "2.0")
	if err != nil {
		t.Fatalf("GetImpactAnalysis: %v", err)
	}
	if diff := cmp.Diff([]string{"R2", "R3"}, res.Downstream); diff != "" {
		t.Errorf("downstream (-want +got):\n%s", diff)
	}
	if len(res.Upstream) != 0 {
		t.Errorf("upstream = %v", res.Upstream)
	}

	if _, err := svc.GetImpactAnalysis(ctx, "R9", ""); !errors.Is(err, apperr.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestFindCircularDeps(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, []models.Item{
		{ID: "A", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "B", Type: models.ItemRequirement, Version: "1.0"},
	}, nil)
	_, _ = svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "A", TargetItemID: "B", Type: models.LinkDerives})
	if got := svc.FindCircularDeps(ctx); len(got) != 0 {
		t.Fatalf("acyclic graph: %v", got)
	}
	_, _ = svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "B", TargetItemID: "A", Type: models.LinkDerives})
	if diff := cmp.Diff([][]string{{"A", "B", "A"}}, svc.FindCircularDeps(ctx)); diff != "" {
		t.Errorf("cycles (-want +got):\n%s", diff)
	}
}

func TestBaselineAllLinks(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, scenarioItems(), scenarioEdges())
	a, _ := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "T1", TargetItemID: "R1", Type: models.LinkVerifies})
	b, _ := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "T1", TargetItemID: "R7", Type: models.LinkVerifies})

	res := svc.BaselineAllLinks(ctx)
	if len(res) != 2 {
		t.Fatalf("results = %+v", res)
	}
	if res[0].LinkID != a.ID || !res[0].Pinned || res[0].Error != "" {
		t.Errorf("result[0] = %+v", res[0])
	}
	if res[1].LinkID != b.ID || res[1].Pinned || res[1].Error == "" {
		t.Errorf("result[1] = %+v", res[1])
	}
}

func TestStatusTransitionsThroughFacade(t *testing.T) {
	ctx := context.Background()
	svc, _ := testService(t, scenarioItems(), scenarioEdges())
	l, _ := svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "T1", TargetItemID: "R1", Type: models.LinkVerifies})

	if _, err := svc.UpdateLinkStatus(ctx, l.ID, models.StatusVerified); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("proposed -> verified: err = %v", err)
	}
	for _, st := range []models.LinkStatus{models.StatusAgreed, models.StatusImplemented, models.StatusProposed} {
		if _, err := svc.UpdateLinkStatus(ctx, l.ID, st); err != nil {
			t.Fatalf("-> %s: %v", st, err)
		}
	}
}

type failingSource struct{ MemorySource }

func (*failingSource) AllItems() ([]models.Item, error) { return nil, errors.New("db down") }

func TestAnalysesDegradeWhenModelUnavailable(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewService(linkstore.New(), &failingSource{}, nil, logger)
	_, _ = svc.AddLink(ctx, linkstore.AddRequest{SourceItemID: "A", TargetItemID: "B", Type: models.LinkDerives})

	if got := svc.RunHealthChecks(ctx); len(got) != 0 {
		t.Errorf("issues = %+v, want none", got)
	}
	if got := svc.FindOrphans(ctx); len(got) != 0 {
		t.Errorf("orphans = %v", got)
	}
}
