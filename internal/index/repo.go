package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/tracelight/internal/models"
)

// Document is one indexed item document.
type Document struct {
	Path      string
	Checksum  string
	Body      string
	UpdatedAt time.Time
	Item      models.Item
	Edges     []models.StructuralEdge
}

// UpsertDocument inserts or replaces an item, its FTS entry and the edges
// declared by its document, within a transaction. A document that now
// declares a different id replaces the item it declared before.
func (db *DB) UpsertDocument(d Document) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if d.Path != "" {
		if err := deleteByPath(tx, d.Path, d.Item.ID); err != nil {
			return err
		}
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	if err := insertItem(tx, d.Item, d.Path, d.Checksum, d.Body, d.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM edges WHERE origin_path = ? AND source = ?`, d.Path, d.Item.ID); err != nil {
		return fmt.Errorf("index: clear edges: %w", err)
	}
	if err := insertEdges(tx, d.Edges, d.Path); err != nil {
		return err
	}
	return tx.Commit()
}

func insertItem(tx *sql.Tx, it models.Item, path, checksum, body string, at time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO items (id, type, version, label, req_id, path, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type       = excluded.type,
			version    = excluded.version,
			label      = excluded.label,
			req_id     = excluded.req_id,
			path       = excluded.path,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, it.ID, string(it.Type), it.Version, it.Label, it.ReqID, path, checksum, body, at)
	if err != nil {
		return fmt.Errorf("index: upsert item %s: %w", it.ID, err)
	}
	return ftsUpsert(tx, it.ID, it.Label, it.ReqID, body)
}

func insertEdges(tx *sql.Tx, edges []models.StructuralEdge, origin string) error {
	if len(edges) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO edges (source, target, relation, origin_path) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare edge insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range edges {
		if _, err := stmt.Exec(e.Source, e.Target, e.RelationType, origin); err != nil {
			return fmt.Errorf("index: insert edge: %w", err)
		}
	}
	return nil
}

// deleteByPath drops the item previously declared by path unless it is
// keep, together with the edges that document declared.
func deleteByPath(tx *sql.Tx, path, keep string) error {
	var old string
	err := tx.QueryRow(`SELECT id FROM items WHERE path = ?`, path).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) || old == keep {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index: lookup %s: %w", path, err)
	}
	ftsDelete(tx, old)
	_, _ = tx.Exec(`DELETE FROM edges WHERE origin_path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM items WHERE id = ?`, old)
	return nil
}

// DeleteDocument removes the item declared by path, its FTS entry and its
// edges. It returns the removed item id, or "" when nothing was indexed
// for path.
func (db *DB) DeleteDocument(path string) (string, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	err = tx.QueryRow(`SELECT id FROM items WHERE path = ?`, path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: lookup %s: %w", path, err)
	}
	if err := deleteByPath(tx, path, ""); err != nil {
		return "", err
	}
	return id, tx.Commit()
}

// DocumentEntry returns the item id and checksum indexed for path, or empty
// strings when path is not indexed.
func (db *DB) DocumentEntry(path string) (id, cs string, err error) {
	err = db.conn.QueryRow(`SELECT id, checksum FROM items WHERE path = ?`, path).Scan(&id, &cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("index: lookup %s: %w", path, err)
	}
	return id, cs, nil
}

// AllChecksums maps every indexed document path to its checksum. Items
// pushed without a document are skipped.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM items WHERE path <> ''`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// GetItem returns one item, or nil when id is not indexed.
func (db *DB) GetItem(id string) (*models.Item, error) {
	var it models.Item
	var typ string
	err := db.conn.QueryRow(`SELECT id, type, version, label, req_id FROM items WHERE id = ?`, id).
		Scan(&it.ID, &typ, &it.Version, &it.Label, &it.ReqID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get item %s: %w", id, err)
	}
	it.Type = models.ItemType(typ)
	return &it, nil
}

// AllItems returns every item ordered by id.
func (db *DB) AllItems() ([]models.Item, error) {
	rows, err := db.conn.Query(`SELECT id, type, version, label, req_id FROM items ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("index: all items: %w", err)
	}
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]models.Item, error) {
	defer rows.Close()
	var out []models.Item
	for rows.Next() {
		var it models.Item
		var typ string
		if err := rows.Scan(&it.ID, &typ, &it.Version, &it.Label, &it.ReqID); err != nil {
			return nil, err
		}
		it.Type = models.ItemType(typ)
		out = append(out, it)
	}
	return out, rows.Err()
}

// AllEdges returns every structural edge in insertion order.
func (db *DB) AllEdges() ([]models.StructuralEdge, error) {
	rows, err := db.conn.Query(`SELECT source, target, relation FROM edges ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("index: all edges: %w", err)
	}
	defer rows.Close()
	var out []models.StructuralEdge
	for rows.Next() {
		var e models.StructuralEdge
		if err := rows.Scan(&e.Source, &e.Target, &e.RelationType); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ReplaceModel swaps the whole item and edge collection for one pushed by
// the canvas. Pushed items carry no document path, so the next Sync
// re-indexes any documents on disk on top of them.
func (db *DB) ReplaceModel(items []models.Item, edges []models.StructuralEdge) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsClear(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM edges`); err != nil {
		return fmt.Errorf("index: clear edges: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM items`); err != nil {
		return fmt.Errorf("index: clear items: %w", err)
	}
	now := time.Now().UTC()
	for _, it := range items {
		if err := insertItem(tx, it, "", "", "", now); err != nil {
			return err
		}
	}
	if err := insertEdges(tx, edges, ""); err != nil {
		return err
	}
	return tx.Commit()
}
