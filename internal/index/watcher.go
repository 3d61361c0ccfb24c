package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tracelight/internal/storage"
)

// settleDelay is how long the watcher waits for a burst of file events to
// go quiet before touching the index.
const settleDelay = 150 * time.Millisecond

// EventCallback is called after a watcher-driven index change with the
// affected item id. kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, itemID string)

type watcher struct {
	db     *DB
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback

	fsw *fsnotify.Watcher
	// dirty holds model-relative document paths touched since the last flush.
	dirty map[string]struct{}
	// rescan forces a full reconcile on the next flush. Renames and new
	// directories set it, since fsnotify does not report both ends.
	rescan bool
}

// Watch starts an fsnotify watcher on the model root and keeps the index in
// step with the item documents until ctx is cancelled.
//
// Events are coalesced per path and applied once the directory has been
// quiet for settleDelay, so an editor's write-rename-chmod burst yields a
// single callback. Rewrites that leave the checksum unchanged are ignored.
// A document whose id changed reports the old item deleted and the new one
// created.
func Watch(ctx context.Context, db *DB, store storage.Provider, modelRoot string, logger *slog.Logger, cb EventCallback) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := addDirsRecursive(fsw, modelRoot); err != nil {
		return err
	}

	w := &watcher{
		db:     db,
		store:  store,
		root:   modelRoot,
		logger: logger,
		cb:     cb,
		fsw:    fsw,
		dirty:  make(map[string]struct{}),
	}

	logger.Info("watcher: started", slog.String("root", modelRoot))

	timer := time.NewTimer(settleDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case <-timer.C:
			w.flush()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.note(ev) {
				timer.Reset(settleDelay)
			}

		case watchErr, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// note records ev and reports whether it is relevant to the index.
func (w *watcher) note(ev fsnotify.Event) bool {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if strings.HasPrefix(filepath.Base(ev.Name), ".") {
				return false
			}
			if err := addDirsRecursive(w.fsw, ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			w.rescan = true
			return true
		}
	}

	// Temp files from atomic writes are hidden.
	base := filepath.Base(ev.Name)
	if !strings.HasSuffix(base, ".md") || strings.HasPrefix(base, ".") {
		return false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return false
	}
	w.dirty[filepath.ToSlash(rel)] = struct{}{}
	if ev.Op&fsnotify.Rename != 0 {
		w.rescan = true
	}
	return true
}

func (w *watcher) flush() {
	dirty := w.dirty
	w.dirty = make(map[string]struct{})

	if w.rescan {
		w.rescan = false
		w.reconcile()
		return
	}

	paths := make([]string, 0, len(dirty))
	for p := range dirty {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		w.apply(p)
	}
}

// reconcile compares every indexed document against the disk.
func (w *watcher) reconcile() {
	checksums, err := w.db.AllChecksums()
	if err != nil {
		w.logger.Warn("watcher: reconcile checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := w.store.List("")
	if err != nil {
		w.logger.Warn("watcher: reconcile list failed", slog.String("error", err.Error()))
		return
	}

	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		onDisk[m.Path] = struct{}{}
	}
	for p := range checksums {
		if _, ok := onDisk[p]; !ok {
			w.remove(p)
		}
	}
	for _, m := range metas {
		if checksums[m.Path] != m.Checksum {
			w.apply(m.Path)
		}
	}
}

// apply re-indexes path from disk, or drops it when the file is gone.
func (w *watcher) apply(path string) {
	data, err := w.store.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		w.remove(path)
		return
	}
	if err != nil {
		w.logger.Warn("watcher: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	oldID, oldSum, err := w.db.DocumentEntry(path)
	if err != nil {
		w.logger.Warn("watcher: lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	d, err := ParseDocument(path, data)
	if err != nil {
		w.logger.Warn("watcher: parse failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if d.Checksum == oldSum {
		return
	}
	if err := w.db.UpsertDocument(d); err != nil {
		w.logger.Warn("watcher: index failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	w.logger.Debug("watcher: indexed", slog.String("path", path), slog.String("item", d.Item.ID))
	switch {
	case oldID == "":
		w.emit("created", d.Item.ID)
	case oldID != d.Item.ID:
		w.emit("deleted", oldID)
		w.emit("created", d.Item.ID)
	default:
		w.emit("updated", d.Item.ID)
	}
}

func (w *watcher) remove(path string) {
	id, err := w.db.DeleteDocument(path)
	if err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if id != "" {
		w.logger.Debug("watcher: deleted", slog.String("path", path), slog.String("item", id))
		w.emit("deleted", id)
	}
}

func (w *watcher) emit(kind, id string) {
	if w.cb != nil {
		w.cb(kind, id)
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the
// watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
