// Package testutil provides shared test helpers for setting up model
// directories, databases and the query facade.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/tracelight/internal/health"
	"github.com/starford/tracelight/internal/index"
	"github.com/starford/tracelight/internal/linkstore"
	"github.com/starford/tracelight/internal/storage"
	"github.com/starford/tracelight/internal/traceservice"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tracelight-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestModel creates a temporary model directory with a storage.Provider.
func TestModel(t *testing.T) (string, storage.Provider) {
	t.Helper()
	modelDir := t.TempDir()
	store, err := storage.NewFS(modelDir)
	if err != nil {
		t.Fatal(err)
	}
	return modelDir, store
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestService wires a facade over db with an empty link store that
// persists to db, the way the server does.
func TestService(t *testing.T, db *index.DB) (*traceservice.Service, *linkstore.Store) {
	t.Helper()
	links := linkstore.New()
	links.OnChange(func(ev linkstore.ChangeEvent) {
		var err error
		if ev.Kind == linkstore.ChangeDeleted {
			err = db.DeleteLink(ev.Link.ID)
		} else {
			err = db.UpsertLink(ev.Link)
		}
		if err != nil {
			t.Errorf("persist link %s: %v", ev.Link.ID, err)
		}
	})
	return traceservice.NewService(links, db, health.New(), DiscardLogger()), links
}
