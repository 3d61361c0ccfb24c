package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/tracelight/internal/models"
	"github.com/starford/tracelight/internal/testutil"
	"github.com/starford/tracelight/internal/traceservice"
)

// testEnv sets up a temp model dir, SQLite DB, facade and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*traceservice.Service, http.Handler) {
	t.Helper()
	_, store := testutil.TestModel(t)
	db := testutil.TestDB(t)
	svc, _ := testutil.TestService(t, db)
	docs := NewDocumentService(store, db, nil)
	return svc, NewRouter(svc, authToken != "", authToken, nil, docs)
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		r = httptest.NewRequest(method, path, bytes.NewReader(raw))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func seedModel(t *testing.T, router http.Handler) {
	t.Helper()
	w := do(t, router, http.MethodPut, "/model", ModelRequest{
		Items: []models.Item{
			{ID: "S1", Type: models.ItemSystem, Version: "1.0"},
			{ID: "R1", Type: models.ItemRequirement, Version: "1.0"},
			{ID: "T1", Type: models.ItemTestCase, Version: "1.0"},
		},
		Edges: []models.StructuralEdge{
			{Source: "S1", Target: "R1", RelationType: models.RelationContains},
			{Source: "S1", Target: "T1", RelationType: models.RelationContains},
		},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("seed model = %d, body = %s", w.Code, w.Body.String())
	}
}

func createLink(t *testing.T, router http.Handler, src, dst string, typ models.LinkType) LinkView {
	t.Helper()
	w := do(t, router, http.MethodPost, "/links", AddLinkRequest{SourceItemID: src, TargetItemID: dst, Type: typ})
	if w.Code != http.StatusCreated {
		t.Fatalf("create link = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[LinkView](t, w)
}

func TestReplaceModelAndListItems(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)

	w := do(t, router, http.MethodGet, "/items", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list items = %d", w.Code)
	}
	got := decode[ModelRequest](t, w)
	if len(got.Items) != 3 || len(got.Edges) != 2 {
		t.Errorf("model = %+v", got)
	}
}

func TestReplaceModel_Invalid(t *testing.T) {
	_, router := testEnv(t, "")
	cases := map[string]ModelRequest{
		"missing id":   {Items: []models.Item{{Type: models.ItemSystem, Version: "1.0"}}},
		"unknown type": {Items: []models.Item{{ID: "X", Type: "spaceship", Version: "1.0"}}},
		"bad version":  {Items: []models.Item{{ID: "X", Type: models.ItemSystem, Version: "1..0"}}},
		"edge target":  {Edges: []models.StructuralEdge{{Source: "A"}}},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if w := do(t, router, http.MethodPut, "/model", body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestCreateLink(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)

	l := createLink(t, router, "T1", "R1", models.LinkVerifies)
	if l.ID == "" || l.Status != models.StatusProposed || l.Pinned {
		t.Errorf("new link = %+v", l)
	}

	// Same triple again is a conflict.
	w := do(t, router, http.MethodPost, "/links", AddLinkRequest{SourceItemID: "T1", TargetItemID: "R1", Type: models.LinkVerifies})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", w.Code)
	}
	// Self link.
	w = do(t, router, http.MethodPost, "/links", AddLinkRequest{SourceItemID: "R1", TargetItemID: "R1", Type: models.LinkDerives})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self link = %d, want 400", w.Code)
	}
	// Unknown type fails request validation.
	w = do(t, router, http.MethodPost, "/links", map[string]string{"sourceItemId": "T1", "targetItemId": "R1", "type": "blesses"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown type = %d, want 400", w.Code)
	}
}

func TestLinksForItem(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)
	l := createLink(t, router, "T1", "R1", models.LinkVerifies)

	got := decode[LinkListResponse](t, do(t, router, http.MethodGet, "/items/R1/links", nil))
	if len(got.Links) != 1 || got.Links[0].ID != l.ID {
		t.Errorf("links for R1 = %+v", got.Links)
	}
	got = decode[LinkListResponse](t, do(t, router, http.MethodGet, "/items/nobody/links", nil))
	if got.Links == nil || len(got.Links) != 0 {
		t.Errorf("links for unknown item = %#v, want empty list", got.Links)
	}
}

func TestUpdateAndDeleteLink(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)
	l := createLink(t, router, "S1", "R1", models.LinkSatisfies)

	notes := "checked in review"
	w := do(t, router, http.MethodPatch, "/links/"+l.ID, UpdateLinkRequest{Notes: &notes})
	if w.Code != http.StatusOK || decode[LinkView](t, w).Notes != notes {
		t.Fatalf("patch = %d, body = %s", w.Code, w.Body.String())
	}
	if w := do(t, router, http.MethodPatch, "/links/"+l.ID, map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty patch = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPatch, "/links/nope", UpdateLinkRequest{Notes: &notes}); w.Code != http.StatusNotFound {
		t.Errorf("patch unknown = %d, want 404", w.Code)
	}

	if w := do(t, router, http.MethodDelete, "/links/"+l.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/links/"+l.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("second delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/links/"+l.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", w.Code)
	}
}

func TestStatusTransitions(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)
	l := createLink(t, router, "T1", "R1", models.LinkVerifies)

	if w := do(t, router, http.MethodPost, "/links/"+l.ID+"/status", StatusRequest{Status: models.StatusVerified}); w.Code != http.StatusConflict {
		t.Errorf("skip ahead = %d, want 409", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/links/"+l.ID+"/status", StatusRequest{Status: models.StatusBroken}); w.Code != http.StatusConflict {
		t.Errorf("broken = %d, want 409", w.Code)
	}
	w := do(t, router, http.MethodPost, "/links/"+l.ID+"/status", StatusRequest{Status: models.StatusAgreed})
	if w.Code != http.StatusOK || decode[LinkView](t, w).Status != models.StatusAgreed {
		t.Errorf("agree = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestStalePinThroughAPI(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)
	l := createLink(t, router, "T1", "R1", models.LinkVerifies)

	if w := do(t, router, http.MethodPost, "/links/"+l.ID+"/pin", nil); w.Code != http.StatusOK || !decode[LinkView](t, w).Pinned {
		t.Fatalf("pin = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[HealthResponse](t, do(t, router, http.MethodGet, "/health", nil)); len(got.Issues) != 0 {
		t.Fatalf("healthy model issues = %+v", got.Issues)
	}

	// Bump R1 on the canvas.
	w := do(t, router, http.MethodPut, "/model", ModelRequest{
		Items: []models.Item{
			{ID: "S1", Type: models.ItemSystem, Version: "1.0"},
			{ID: "R1", Type: models.ItemRequirement, Version: "1.1"},
			{ID: "T1", Type: models.ItemTestCase, Version: "1.0"},
		},
		Edges: []models.StructuralEdge{
			{Source: "S1", Target: "R1", RelationType: models.RelationContains},
			{Source: "S1", Target: "T1", RelationType: models.RelationContains},
		},
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("bump = %d", w.Code)
	}

	got := decode[HealthResponse](t, do(t, router, http.MethodGet, "/health", nil))
	if len(got.Issues) != 1 || got.Issues[0].Type != models.IssueStalePin || got.Issues[0].Severity != models.SeverityCritical {
		t.Fatalf("issues = %+v", got.Issues)
	}
	view := decode[LinkView](t, do(t, router, http.MethodGet, "/links/"+l.ID, nil))
	if view.EffectiveStatus != models.StatusBroken {
		t.Errorf("effective status = %s, want broken", view.EffectiveStatus)
	}

	// Unpin clears the overlay.
	if w := do(t, router, http.MethodPost, "/links/"+l.ID+"/unpin", nil); w.Code != http.StatusOK || decode[LinkView](t, w).EffectiveStatus != models.StatusProposed {
		t.Errorf("unpin = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestHierarchyEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)
	createLink(t, router, "T1", "R1", models.LinkConflicts)

	w := do(t, router, http.MethodGet, "/items/R1/hierarchy", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hierarchy = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[traceservice.Hierarchy](t, w)
	if got.Parent != "S1" || len(got.Conflicts) != 1 || got.Conflicts[0] != "T1" {
		t.Errorf("hierarchy = %+v", got)
	}
	if w := do(t, router, http.MethodGet, "/items/R404/hierarchy", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown item = %d, want 404", w.Code)
	}
}

func TestBaselineEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)
	createLink(t, router, "T1", "R1", models.LinkVerifies)
	createLink(t, router, "T1", "R9", models.LinkVerifies)

	w := do(t, router, http.MethodPost, "/baseline", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("baseline = %d", w.Code)
	}
	got := decode[struct {
		Results []traceservice.BaselineResult `json:"results"`
	}](t, w)
	if len(got.Results) != 2 || !got.Results[0].Pinned || got.Results[1].Pinned || got.Results[1].Error == "" {
		t.Errorf("results = %+v", got.Results)
	}
}

func TestHealthSubroutes(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/model", ModelRequest{Items: []models.Item{
		{ID: "A", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "B", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "C", Type: models.ItemActor, Version: "1.0"},
	}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("seed = %d", w.Code)
	}
	createLink(t, router, "A", "B", models.LinkDerives)
	createLink(t, router, "B", "A", models.LinkDerives)

	cycles := decode[map[string][][]string](t, do(t, router, http.MethodGet, "/health/cycles", nil))["cycles"]
	if len(cycles) != 1 {
		t.Errorf("cycles = %v", cycles)
	}
	orphans := decode[map[string][]string](t, do(t, router, http.MethodGet, "/health/orphans", nil))["items"]
	if len(orphans) != 1 || orphans[0] != "C" {
		t.Errorf("orphans = %v", orphans)
	}
	uncovered := decode[map[string][]string](t, do(t, router, http.MethodGet, "/health/uncovered", nil))["items"]
	if len(uncovered) != 2 {
		t.Errorf("uncovered = %v", uncovered)
	}
	cov := decode[models.Coverage](t, do(t, router, http.MethodGet, "/health/coverage", nil))
	if cov.Total != 2 || cov.Covered != 0 {
		t.Errorf("coverage = %+v", cov)
	}
}

func TestImpactEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/model", ModelRequest{Items: []models.Item{
		{ID: "R1", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "R2", Type: models.ItemRequirement, Version: "1.0"},
		{ID: "R3", Type: models.ItemRequirement, Version: "1.0"},
	}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("seed = %d", w.Code)
	}
	createLink(t, router, "R2", "R1", models.LinkDerives)
	createLink(t, router, "R3", "R2", models.LinkDerives)

	w = do(t, router, http.MethodGet, "/impact/R1?version=2.0", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("impact = %d", w.Code)
	}
	res := decode[models.ImpactAnalysis](t, w)
	if len(res.Downstream) != 2 || res.Downstream[0] != "R2" || res.Downstream[1] != "R3" {
		t.Errorf("downstream = %v", res.Downstream)
	}
	if w := do(t, router, http.MethodGet, "/impact/R404", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown item = %d, want 404", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/model", ModelRequest{Items: []models.Item{
		{ID: "R1", Type: models.ItemRequirement, Version: "1.0", Label: "braking distance"},
		{ID: "R2", Type: models.ItemRequirement, Version: "1.0", Label: "cabin noise"},
	}})
	if w.Code != http.StatusNoContent {
		t.Fatalf("seed = %d", w.Code)
	}
	got := decode[map[string][]models.Item](t, do(t, router, http.MethodGet, "/search?q=braking", nil))["results"]
	if len(got) != 1 || got[0].ID != "R1" {
		t.Errorf("results = %+v", got)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/links", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed list = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/links", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/links", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/links", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := testEnvWithSSE(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := testEnvWithSSE(t, true, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}

// testEnvWithSSE creates a router with a dummy SSE handler to test auth on /events.
func testEnvWithSSE(t *testing.T, authEnabled bool, token string) http.Handler {
	t.Helper()
	svc, _ := testutil.TestService(t, testutil.TestDB(t))

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(svc, authEnabled, token, sseHandler, nil)
}

func TestCreateLink_AuthorFromHeader(t *testing.T) {
	_, router := testEnv(t, "")
	seedModel(t, router)

	raw, _ := json.Marshal(AddLinkRequest{SourceItemID: "T1", TargetItemID: "R1", Type: models.LinkVerifies})
	req := httptest.NewRequest(http.MethodPost, "/links", bytes.NewReader(raw))
	req.Header.Set(AuthorHeader, "alice")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	if got := decode[LinkView](t, w).Author; got != "alice" {
		t.Errorf("author = %q, want alice", got)
	}

	raw, _ = json.Marshal(AddLinkRequest{SourceItemID: "S1", TargetItemID: "R1", Type: models.LinkSatisfies, Author: "bob"})
	req = httptest.NewRequest(http.MethodPost, "/links", bytes.NewReader(raw))
	req.Header.Set(AuthorHeader, "alice")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := decode[LinkView](t, w).Author; got != "bob" {
		t.Errorf("explicit author = %q, want bob", got)
	}
}
