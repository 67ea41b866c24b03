package vault

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

// Watch imports file changes below the vault root until ctx is cancelled.
//
// New directories are added to the watch list as they appear. Renames and
// new directories trigger a short debounced full Sync, which picks up the
// new path and drops notes whose files are gone.
func (im *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := im.fs.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	im.logger.Info("vault: watcher started", slog.String("root", root))

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
			im.logger.Info("vault: watcher stopped")
			return nil

		case <-reconcileCh:
			res, err := im.Sync(ctx)
			if err != nil {
				im.logger.Warn("vault: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			im.logger.Debug("vault: reconciled",
				slog.Int("imported", res.Imported),
				slog.Int("removed", res.Removed))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			im.handle(ctx, w, ev, scheduleReconcile)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Error("vault: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (im *Importer) handle(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event, scheduleReconcile func()) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if isHidden(filepath.Base(ev.Name)) {
				return
			}
			if err := addDirsRecursive(w, ev.Name); err != nil {
				im.logger.Warn("vault: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			scheduleReconcile()
			return
		}
	}
	if !IsNoteFile(ev.Name) {
		return
	}
	rel, err := im.fs.Rel(ev.Name)
	if err != nil {
		return
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		changed, err := im.ImportFile(ctx, rel)
		if err != nil {
			im.logger.Warn("vault: import failed", slog.String("path", rel), slog.String("error", err.Error()))
			return
		}
		if changed {
			im.logger.Debug("vault: file imported", slog.String("path", rel))
		}

	case ev.Op&fsnotify.Remove != 0:
		if err := im.RemovePath(ctx, rel); err != nil {
			im.logger.Warn("vault: remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}

	case ev.Op&fsnotify.Rename != 0:
		// fsnotify reports the old path only; the new one arrives as Create
		// when it stays inside a watched directory.
		if err := im.RemovePath(ctx, rel); err != nil {
			im.logger.Warn("vault: rename remove failed", slog.String("path", rel), slog.String("error", err.Error()))
		}
		scheduleReconcile()
	}
}

// addDirsRecursive adds root and all its visible subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
