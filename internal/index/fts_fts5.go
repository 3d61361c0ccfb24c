//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/tracelight/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
			id UNINDEXED,
			label,
			req_id,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id, label, reqID, body string) error {
	_, _ = tx.Exec(`DELETE FROM items_fts WHERE id = ?`, id)
	_, err := tx.Exec(`INSERT INTO items_fts (id, label, req_id, body) VALUES (?, ?, ?, ?)`,
		id, label, reqID, body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM items_fts WHERE id = ?`, id)
}

func ftsClear(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM items_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// SearchItems performs an FTS5 full-text search ranked by relevance.
func (db *DB) SearchItems(query string, limit int) ([]models.Item, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT i.id, i.type, i.version, i.label, i.req_id
		FROM items_fts f
		JOIN items i ON i.id = f.id
		WHERE items_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanItems(rows)
}
