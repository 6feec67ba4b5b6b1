package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/healthaudit/audit-pipeline/pkg/logger"
)

// Watcher reloads configuration from disk whenever the watched file
// changes, re-validating before handing the new Config to its callback so
// a broken edit never replaces a working configuration.
type Watcher struct {
	path     string
	log      *logger.Logger
	onReload func(*Config)
}

// NewWatcher builds a Watcher over configPath.
func NewWatcher(configPath string, log *logger.Logger, onReload func(*Config)) *Watcher {
	return &Watcher{path: configPath, log: log, onReload: onReload}
}

// Run blocks, watching the config file's directory (not the file itself,
// since editors commonly replace a file via rename rather than write-in-place)
// until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error("config reload rejected, keeping previous configuration", "error", err)
		return
	}
	w.log.Info("configuration reloaded", "path", w.path)
	w.onReload(cfg)
}
