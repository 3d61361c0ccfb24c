package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/tracelight/internal/models"
)

// UpsertLink persists a requirement link. New links are appended after
// every existing one so AllLinks returns store order.
func (db *DB) UpsertLink(l models.RequirementLink) error {
	_, err := db.conn.Exec(`
		INSERT INTO requirement_links (
			id, seq, type, source_item, source_pinned, target_item, target_pinned,
			status, notes, author, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM requirement_links), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type          = excluded.type,
			source_item   = excluded.source_item,
			source_pinned = excluded.source_pinned,
			target_item   = excluded.target_item,
			target_pinned = excluded.target_pinned,
			status        = excluded.status,
			notes         = excluded.notes,
			author        = excluded.author,
			updated_at    = excluded.updated_at
	`, l.ID, string(l.Type),
		l.Source.ItemID, nullable(l.Source.PinnedVersion),
		l.Target.ItemID, nullable(l.Target.PinnedVersion),
		string(l.Status), l.Notes, l.Author, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert link %s: %w", l.ID, err)
	}
	return nil
}

// DeleteLink removes a persisted link. Unknown ids are ignored.
func (db *DB) DeleteLink(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM requirement_links WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete link %s: %w", id, err)
	}
	return nil
}

// AllLinks loads every persisted link in insertion order.
func (db *DB) AllLinks() ([]models.RequirementLink, error) {
	rows, err := db.conn.Query(`
		SELECT id, type, source_item, source_pinned, target_item, target_pinned,
		       status, notes, author, created_at, updated_at
		FROM requirement_links ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("index: all links: %w", err)
	}
	defer rows.Close()

	var out []models.RequirementLink
	for rows.Next() {
		var (
			l              models.RequirementLink
			typ, status    string
			srcPin, dstPin sql.NullString
		)
		if err := rows.Scan(&l.ID, &typ, &l.Source.ItemID, &srcPin, &l.Target.ItemID, &dstPin,
			&status, &l.Notes, &l.Author, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.Type = models.LinkType(typ)
		l.Status = models.LinkStatus(status)
		l.Source.PinnedVersion = fromNullable(srcPin)
		l.Target.PinnedVersion = fromNullable(dstPin)
		out = append(out, l)
	}
	return out, rows.Err()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
