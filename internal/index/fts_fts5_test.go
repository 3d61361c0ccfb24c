//go:build sqlite_fts5

package index

import (
	"testing"

	"github.com/starford/tracelight/internal/models"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM items_fts`).Scan(&count); err != nil {
		t.Fatalf("items_fts table missing: %v", err)
	}
}

func TestFTS5_SearchByBody(t *testing.T) {
	db := testDB(t)
	d := doc("fts.md", "R1", models.ItemRequirement)
	d.Body = "The actuator shall provide powerful braking."
	if err := db.UpsertDocument(d); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	results, err := db.SearchItems("powerful", 10)
	if err != nil {
		t.Fatalf("SearchItems: %v", err)
	}
	if len(results) != 1 || results[0].ID != "R1" {
		t.Fatalf("results = %+v", results)
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	d := doc("gone.md", "G1", models.ItemFunction)
	d.Body = "vanishing content"
	_ = db.UpsertDocument(d)
	_, _ = db.DeleteDocument("gone.md")

	if results, _ := db.SearchItems("vanishing", 10); len(results) != 0 {
		t.Errorf("deleted item still in FTS index: %+v", results)
	}
}

func TestFTS5_ReplaceModelClearsFTS(t *testing.T) {
	db := testDB(t)
	d := doc("old.md", "O1", models.ItemFunction)
	d.Body = "original text"
	_ = db.UpsertDocument(d)
	_ = db.ReplaceModel([]models.Item{{ID: "N1", Type: models.ItemSystem, Version: "1.0", Label: "replacement"}}, nil)

	if results, _ := db.SearchItems("original", 10); len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ := db.SearchItems("replacement", 10)
	if len(results) != 1 || results[0].ID != "N1" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
