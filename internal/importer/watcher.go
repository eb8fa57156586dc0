package importer

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the import directory and applies file
// changes until ctx is cancelled.
//
// New directories created at runtime are added to the watch list and their
// files imported. Rename events trigger a debounced Sync that uploads the new
// names and removes remote copies whose local file no longer exists.
func (im *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := im.addDirsRecursive(w, im.dir); err != nil {
		return err
	}

	im.log.Info("watcher: started", slog.String("root", im.dir))

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
			im.log.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, err := im.Sync(ctx); err != nil {
				im.log.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rel, ok := im.rel(ev.Name)
			if !ok || hidden(rel) {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0 && isDir(ev.Name):
				if err := im.addDirsRecursive(w, ev.Name); err != nil {
					im.log.Warn("watcher: add new dir failed", slog.String("path", rel), slog.String("error", err.Error()))
				}
				im.importDir(ctx, ev.Name)

			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if !isRegular(ev.Name) {
					continue
				}
				if _, err := im.importFile(ctx, rel); err != nil {
					im.log.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", err.Error()))
				}

			case ev.Op&fsnotify.Remove != 0:
				im.removed(ctx, rel)

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new name arrives as a
				// Create when it stays inside a watched directory.
				im.removed(ctx, rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.log.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// removed forgets rel, which may have been a file or a whole directory.
func (im *Importer) removed(ctx context.Context, rel string) {
	if err := im.forget(ctx, rel); err != nil {
		im.log.Warn("watcher: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	im.forgetDir(ctx, rel)
}

// importDir imports the files already present in a newly created directory.
func (im *Importer) importDir(ctx context.Context, dirPath string) {
	_ = filepath.WalkDir(dirPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, ok := im.rel(p)
		if !ok {
			return nil
		}
		if hidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, err := im.importFile(ctx, rel); err != nil {
			im.log.Warn("watcher: import failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		return nil
	})
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func (im *Importer) addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := im.rel(p); ok && hidden(rel) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func isRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
