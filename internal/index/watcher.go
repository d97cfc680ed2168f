package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ctxcache/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	// EventSource reports a change to a referenced source file. The path is
	// relative to the project root.
	EventSource = "source"
)

// EventCallback is called after a watcher-driven change. Document paths are
// relative to the cache root.
type EventCallback func(kind string, path string)

const reconcileDelay = 200 * time.Millisecond

type watcher struct {
	w           *fsnotify.Watcher
	db          *DB
	store       storage.Provider
	root        string
	projectRoot string
	logger      *slog.Logger
	cb          EventCallback
	sourceDirs  map[string]bool
}

// Watch starts an fsnotify watcher on the cache root and on the directories
// of every referenced source file, and processes events until ctx is
// cancelled.
//
// Document changes update the index. Changes to a referenced source file are
// reported as EventSource so callers can re-validate the documents that
// reference it. Rename events trigger a debounced reconciliation pass.
func Watch(ctx context.Context, db *DB, store storage.Provider, root string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	wt := &watcher{
		w:           fw,
		db:          db,
		store:       store,
		root:        root,
		projectRoot: filepath.Dir(root),
		logger:      logger,
		cb:          cb,
		sourceDirs:  map[string]bool{},
	}
	if err := addDirsRecursive(fw, root); err != nil {
		return err
	}
	wt.watchSources()

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			wt.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if wt.inCache(ev.Name) {
				if wt.handleDocument(ev) {
					scheduleReconcile()
				}
				continue
			}
			wt.handleSource(ev)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (wt *watcher) inCache(abs string) bool {
	return abs == wt.root || strings.HasPrefix(abs, wt.root+string(os.PathSeparator))
}

func (wt *watcher) emit(kind, path string) {
	if wt.cb != nil {
		wt.cb(kind, path)
	}
}

// handleDocument processes an event under the cache root. It reports whether
// a reconciliation pass is needed.
func (wt *watcher) handleDocument(ev fsnotify.Event) bool {
	abs := ev.Name

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			if err := addDirsRecursive(wt.w, abs); err != nil {
				wt.logger.Warn("watcher: add new dir failed", slog.String("path", abs), slog.String("error", err.Error()))
			}
			wt.indexNewDir(abs)
			return false
		}
	}

	if !strings.HasSuffix(abs, ".md") {
		return false
	}
	rel, err := filepath.Rel(wt.root, abs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		data, err := wt.store.Read(rel)
		if err != nil {
			wt.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			return false
		}
		if err := indexFile(wt.db, rel, data); err != nil {
			wt.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			return false
		}
		kind := EventUpdated
		if ev.Op&fsnotify.Create != 0 {
			kind = EventCreated
		}
		wt.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		wt.watchSources()
		wt.emit(kind, rel)

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// Rename fires on the old path; the new path arrives as Create.
		if err := wt.db.DeleteDocument(rel); err != nil {
			wt.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		} else {
			wt.logger.Debug("watcher: deleted", slog.String("path", rel))
			wt.emit(EventDeleted, rel)
		}
		return ev.Op&fsnotify.Rename != 0
	}
	return false
}

// handleSource reports a change to a referenced source file.
func (wt *watcher) handleSource(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	rel, err := filepath.Rel(wt.projectRoot, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	docs, err := wt.db.Referencing(rel)
	if err != nil {
		wt.logger.Warn("watcher: lookup failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if len(docs) == 0 {
		return
	}
	wt.logger.Debug("watcher: source changed", slog.String("path", rel), slog.Int("documents", len(docs)))
	wt.emit(EventSource, rel)
}

// watchSources adds the directory of every referenced source file that is
// not watched yet. Directories that do not exist are retried on the next
// call.
func (wt *watcher) watchSources() {
	paths, err := wt.db.ReferencedPaths()
	if err != nil {
		wt.logger.Warn("watcher: referenced paths failed", slog.String("error", err.Error()))
		return
	}
	for _, ref := range paths {
		dir := filepath.Dir(filepath.Join(wt.projectRoot, filepath.FromSlash(ref)))
		if wt.sourceDirs[dir] || wt.inCache(dir) {
			continue
		}
		if err := wt.w.Add(dir); err != nil {
			wt.logger.Debug("watcher: source dir not watched", slog.String("dir", dir), slog.String("error", err.Error()))
			continue
		}
		wt.sourceDirs[dir] = true
	}
}

// reconcile removes index entries without a file on disk and indexes
// files that are new or changed.
func (wt *watcher) reconcile() {
	checksums, err := wt.db.AllChecksums()
	if err != nil {
		wt.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	paths, err := wt.store.List("")
	if err != nil {
		wt.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]bool, len(paths))
	for _, p := range paths {
		disk[p] = true
	}
	for p := range checksums {
		if !disk[p] {
			if err := wt.db.DeleteDocument(p); err == nil {
				wt.logger.Debug("reconcile: removed stale", slog.String("path", p))
				wt.emit(EventDeleted, p)
			}
		}
	}
	for _, p := range paths {
		if _, ok := checksums[p]; ok {
			continue
		}
		data, err := wt.store.Read(p)
		if err != nil {
			continue
		}
		if err := indexFile(wt.db, p, data); err == nil {
			wt.logger.Debug("reconcile: indexed new", slog.String("path", p))
			wt.emit(EventCreated, p)
		}
	}
	wt.watchSources()
}

// indexNewDir indexes any .md files found in a newly created directory.
func (wt *watcher) indexNewDir(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}
		rel, err := filepath.Rel(wt.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		data, err := wt.store.Read(rel)
		if err != nil {
			return nil
		}
		if err := indexFile(wt.db, rel, data); err == nil {
			wt.logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			wt.emit(EventCreated, rel)
		}
		return nil
	})
	wt.watchSources()
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
