package index

import (
	"log/slog"
	"time"

	"github.com/starford/tracelight/internal/checksum"
	"github.com/starford/tracelight/internal/parser"
	"github.com/starford/tracelight/internal/storage"
)

// SyncReport counts what a Sync pass changed.
type SyncReport struct {
	Indexed   int `json:"indexed"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	// Invalid lists documents that could not be read or parsed.
	Invalid []string `json:"invalid,omitempty"`
}

// Sync walks the model directory and brings the index up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
//
// Documents that fail to parse are logged, reported and skipped; their
// previous index entry, if any, is kept.
func Sync(db ModelIndex, store storage.Provider, logger *slog.Logger) (SyncReport, error) {
	var rep SyncReport

	metas, err := store.List("")
	if err != nil {
		return rep, err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return rep, err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			rep.Unchanged++
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			rep.Invalid = append(rep.Invalid, m.Path)
			continue
		}
		id, err := indexFile(db, m.Path, data)
		if err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			rep.Invalid = append(rep.Invalid, m.Path)
			continue
		}
		rep.Indexed++
		logger.Debug("sync: indexed", slog.String("path", m.Path), slog.String("item", id))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if _, err := db.DeleteDocument(p); err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		rep.Removed++
		logger.Debug("sync: removed stale", slog.String("path", p))
	}

	logger.Info("sync: done",
		slog.Int("indexed", rep.Indexed),
		slog.Int("unchanged", rep.Unchanged),
		slog.Int("removed", rep.Removed),
		slog.Int("invalid", len(rep.Invalid)))
	return rep, nil
}

// ParseDocument turns raw document bytes into an indexable Document.
func ParseDocument(path string, data []byte) (Document, error) {
	res, err := parser.Parse(path, data)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Path:      path,
		Checksum:  checksum.Sum(data),
		Body:      res.Body,
		UpdatedAt: time.Now().UTC(),
		Item:      res.Item,
		Edges:     res.Edges,
	}, nil
}

// indexFile parses data and upserts it into the DB, returning the item id.
func indexFile(db ModelIndex, path string, data []byte) (string, error) {
	d, err := ParseDocument(path, data)
	if err != nil {
		return "", err
	}
	if err := db.UpsertDocument(d); err != nil {
		return "", err
	}
	return d.Item.ID, nil
}
