// internal/config/watcher.go
// Live reload of the non-identity tunables SPEC_FULL §B calls out
// (prune_cache_interval, relay debounce window): a fsnotify watcher on the
// config file pushes a freshly-loaded Config onto a channel on every write,
// non-blocking so a slow consumer never stalls the filesystem watch loop.
package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/Voskan/flarego/internal/logging"
	"go.uber.org/zap"
)

// Watcher reloads filePath on every write/create event and publishes the
// result on Updates(). The zero value is not usable; use NewWatcher.
type Watcher struct {
	filePath string
	updates  chan Config
	fsw      *fsnotify.Watcher
}

// NewWatcher opens an fsnotify watch on filePath. The caller must call Run
// in its own goroutine and Close when done.
func NewWatcher(filePath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filePath); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{filePath: filePath, updates: make(chan Config, 4), fsw: fsw}, nil
}

// Updates streams a new Config each time filePath changes and reloads
// successfully. Failed reloads are logged and skipped, leaving the previous
// Config in effect.
func (w *Watcher) Updates() <-chan Config { return w.updates }

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error { return w.fsw.Close() }

// Run blocks, reloading on every write/create event until the watcher is
// closed or ctxDone-equivalent: callers stop it by calling Close from
// another goroutine, which closes fsw.Events and returns Run.
func (w *Watcher) Run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.filePath)
			if err != nil {
				logging.Logger().Warn("config: reload failed, keeping previous config", zap.Error(err), zap.String("path", w.filePath))
				continue
			}
			select {
			case w.updates <- cfg:
			default:
				logging.Sugar().Warnw("config: dropping reload, consumer too slow", "path", w.filePath)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Logger().Warn("config: watcher error", zap.Error(err))
		}
	}
}
