package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/logsweep/logsweep/pkg/plog"
)

// DefaultDebounce is the quiet period after a file event before a reload
// fires. Editors and config management tools emit bursts of writes.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads the store when the config file changes on disk. It
// watches the parent directory because most editors replace the file by
// renaming a temp file over it, which silently drops a watch placed on
// the file itself.
type Watcher struct {
	store    *Store
	path     string
	debounce time.Duration

	fsw *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher prepares a watcher for the store's config file.
func NewWatcher(s *Store, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	return &Watcher{
		store:    s,
		path:     filepath.Clean(s.Snapshot().Runtime.ConfigPath),
		debounce: debounce,
		fsw:      fsw,
	}, nil
}

// Watch blocks processing file events until ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.close()

	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	plog.Info("Watching config file for changes", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			plog.Debug("Config watcher stopped")
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("config watcher event channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			plog.Debug("Config file event", "op", event.Op.String(), "path", event.Name)
			w.scheduleReload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("config watcher error channel closed")
			}
			plog.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// scheduleReload resets the debounce timer so a burst of writes triggers
// only one reload after the quiet period.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.store.Reload(); err != nil {
			plog.Warn("Config reload failed, keeping previous configuration", "error", err)
		}
	})
}

func (w *Watcher) close() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	if err := w.fsw.Close(); err != nil {
		plog.Debug("Failed to close config watcher", "error", err)
	}
}
