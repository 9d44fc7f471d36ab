package addon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"

	"github.com/GoCodeAlone/keel/logging"
)

// Watcher reports changes to addon manifests and config files.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger logging.Logger
}

// NewWatcher watches each directory and its config folder, when present.
func NewWatcher(dirs []string, logger logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{fs: fw, logger: logging.OrNop(logger)}
	for _, dir := range dirs {
		for _, p := range []string{dir, filepath.Join(dir, "config"), filepath.Join(dir, "config", "initializers")} {
			if !isDir(p) {
				continue
			}
			if err := fw.Add(p); err != nil {
				_ = fw.Close()
				return nil, err
			}
		}
	}
	return w, nil
}

// Run calls onChange for every relevant event until ctx is done or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.logger.Debug("Addon file changed", "path", ev.Name, "op", ev.Op.String())
			onChange(ev.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.fs.Close() }

var watchedExtensions = []string{".yaml", ".yml", ".toml", ".json"}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return slices.Contains(watchedExtensions, filepath.Ext(ev.Name))
}
