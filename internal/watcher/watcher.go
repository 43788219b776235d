// Package watcher reloads the configuration file when it changes on disk.
// Editors and config management tools often replace the file rather than
// write it in place, so the watch is placed on the parent directory and
// events are filtered to the config path. Rapid event bursts are debounced
// into a single reload.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lingorelay/lingorelay/internal/config"
	log "github.com/sirupsen/logrus"
)

// debounceDelay coalesces the event bursts produced by atomic file
// replacement into one reload.
const debounceDelay = 300 * time.Millisecond

// Watcher watches a configuration file and invokes a callback with each
// successfully reloaded configuration.
type Watcher struct {
	configPath string
	onReload   func(*config.Config)

	mu      sync.Mutex
	pending *time.Timer
}

// New creates a watcher for the given config path. onReload is called with
// every configuration that loads cleanly; load failures are logged and the
// previous configuration stays in effect.
func New(configPath string, onReload func(*config.Config)) *Watcher {
	return &Watcher{
		configPath: filepath.Clean(configPath),
		onReload:   onReload,
	}
}

// Start begins watching. It blocks until ctx is cancelled or the underlying
// watcher fails.
func (w *Watcher) Start(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsWatcher.Close() }()

	if err = fsWatcher.Add(filepath.Dir(w.configPath)); err != nil {
		return err
	}
	log.WithField("path", w.configPath).Info("watcher: watching configuration file")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.scheduleReload()
		case errWatch, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.WithField("error", errWatch.Error()).Warn("watcher: filesystem watch error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.configPath {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename)
}

// scheduleReload resets the debounce timer so only the last event of a
// burst triggers a reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := config.Load(w.configPath)
	if err != nil {
		log.WithFields(log.Fields{
			"path":  w.configPath,
			"error": err.Error(),
		}).Error("watcher: configuration reload failed, keeping previous configuration")
		return
	}
	log.WithField("path", w.configPath).Info("watcher: configuration file changed")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
