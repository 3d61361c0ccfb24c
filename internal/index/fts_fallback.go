//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/tracelight/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; item search uses LIKE over the items table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _, _ string) error { return nil }

func ftsDelete(_ *sql.Tx, _ string) {}

func ftsClear(_ *sql.Tx) error { return nil }

// SearchItems performs a LIKE-based search over id, label, requirement id
// and document body.
func (db *DB) SearchItems(query string, limit int) ([]models.Item, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, type, version, label, req_id
		FROM items
		WHERE id LIKE ? OR label LIKE ? OR req_id LIKE ? OR body LIKE ?
		ORDER BY id
		LIMIT ?
	`, like, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanItems(rows)
}
