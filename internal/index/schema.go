// Package index provides the SQLite-backed model index: item documents,
// structural edges and persisted requirement links, with optional FTS5
// item search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS items (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	version    TEXT NOT NULL DEFAULT '1.0',
	label      TEXT NOT NULL DEFAULT '',
	req_id     TEXT NOT NULL DEFAULT '',
	path       TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_path ON items(path);

CREATE TABLE IF NOT EXISTS edges (
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	relation    TEXT NOT NULL DEFAULT 'contains',
	origin_path TEXT NOT NULL DEFAULT '',
	UNIQUE(source, target, relation)
);

CREATE INDEX IF NOT EXISTS idx_edges_origin ON edges(origin_path);

CREATE TABLE IF NOT EXISTS requirement_links (
	id            TEXT PRIMARY KEY,
	seq           INTEGER NOT NULL,
	type          TEXT NOT NULL,
	source_item   TEXT NOT NULL,
	source_pinned TEXT,
	target_item   TEXT NOT NULL,
	target_pinned TEXT,
	status        TEXT NOT NULL DEFAULT 'proposed',
	notes         TEXT NOT NULL DEFAULT '',
	author        TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
