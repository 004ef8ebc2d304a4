package filemanager

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of changes to
// settle before syncing.
const DefaultDebounce = 2 * time.Second

// Watch re-runs Sync whenever files change in a tracked directory, until ctx
// is done. onSync receives the result of every sync and may be nil.
// Directories created later below a tracked one are picked up as well.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration, onSync func(*SyncReport, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range m.opts.Directories {
		if err := os.MkdirAll(dir.Path, 0755); err != nil {
			m.logger.Warn(fmt.Sprintf("cannot create %s: %v", dir.Path, err))
			continue
		}
		n, err := addTree(watcher, dir.Path)
		if err != nil {
			m.logger.Warn(fmt.Sprintf("cannot watch %s: %v", dir.Path, err))
		}
		watched += n
	}
	if watched == 0 {
		return fmt.Errorf("no directory could be watched")
	}
	m.logger.Info(fmt.Sprintf("watching %d directories", watched))

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, err := addTree(watcher, event.Name); err != nil {
						m.logger.Warn(fmt.Sprintf("cannot watch %s: %v", event.Name, err))
					}
				}
			}
			m.logger.Debug(fmt.Sprintf("%s %s", event.Op, event.Name))
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.logger.Error(fmt.Sprintf("watcher error: %v", err))

		case <-timer.C:
			report, err := m.Sync(ctx)
			if err != nil {
				m.logger.Error(fmt.Sprintf("sync after change failed: %v", err))
			}
			if onSync != nil {
				onSync(report, err)
			}
		}
	}
}

// addTree watches root and every directory below it.
func addTree(w *fsnotify.Watcher, root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
