package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/pders01/rollguard/internal/models"
)

// fileWatcher reports critical files the moment they are removed or
// renamed away, between samples
type fileWatcher struct {
	watcher *fsnotify.Watcher
	files   map[string]string // absolute path -> configured name
	logger  *slog.Logger
}

func newFileWatcher(root string, files []string, logger *slog.Logger) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &fileWatcher{watcher: watcher, files: make(map[string]string), logger: logger}
	dirs := make(map[string]bool)
	for _, name := range files {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, name)
		}
		path = filepath.Clean(path)
		w.files[path] = name
		dirs[filepath.Dir(path)] = true
	}
	// Watch parent directories; a removed file cannot be watched itself.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

func (w *fileWatcher) run(ctx context.Context, m *Monitor) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, watched := w.files[filepath.Clean(event.Name)]
			if !watched {
				continue
			}
			m.RecordError(models.ErrorTypeCriticalMissing,
				fmt.Sprintf("critical file %s was %s", name, opVerb(event.Op)),
				map[string]string{"file": name, "op": event.Op.String()},
				models.SeverityLow)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func opVerb(op fsnotify.Op) string {
	if op.Has(fsnotify.Rename) {
		return "renamed"
	}
	return "removed"
}
