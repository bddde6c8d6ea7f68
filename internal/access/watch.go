package access

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ScreenWatcher serves a screen table built from a base table and a YAML
// override file, and reloads the overrides when the file changes.
type ScreenWatcher struct {
	base    *ScreenTable
	path    string
	current atomic.Pointer[ScreenTable]
	logger  *zap.Logger

	// reloaded is signalled after every reload attempt. Used by tests.
	reloaded chan error
}

// NewScreenWatcher loads path over base. The initial load must succeed.
func NewScreenWatcher(base *ScreenTable, path string, logger *zap.Logger) (*ScreenWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &ScreenWatcher{
		base:   base,
		path:   path,
		logger: logger.With(zap.String("screens_file", path)),
	}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Table returns the table currently in effect.
func (w *ScreenWatcher) Table() *ScreenTable {
	return w.current.Load()
}

// Request returns the permission request of a screen from the current table.
func (w *ScreenWatcher) Request(name string) (PermissionRequest, error) {
	return w.Table().Request(name)
}

// Entries lists the current table in definition order.
func (w *ScreenWatcher) Entries() []ScreenEntry {
	return w.Table().Entries()
}

// Run watches the override file until ctx is done. An invalid file keeps the
// previous table in effect.
func (w *ScreenWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create screens watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	name := filepath.Clean(w.path)
	w.logger.Info("watching screen table")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			err := w.reload()
			if err != nil {
				w.logger.Error("screen table reload failed, keeping previous table", zap.Error(err))
			} else {
				w.logger.Info("screen table reloaded", zap.Int("screens", len(w.Table().order)))
			}
			w.signal(err)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("screens watcher error", zap.Error(err))
		}
	}
}

func (w *ScreenWatcher) reload() error {
	overrides, err := LoadScreenTable(w.path)
	if err != nil {
		return err
	}
	w.current.Store(w.base.WithOverrides(overrides))
	return nil
}

func (w *ScreenWatcher) signal(err error) {
	if w.reloaded == nil {
		return
	}
	select {
	case w.reloaded <- err:
	default:
	}
}
