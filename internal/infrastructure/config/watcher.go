package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads the routing tables (slots.yaml, bindings.yaml) when the
// files change on disk. Reload callbacks run on the watcher goroutine; they
// must be fast and must not block.
type Watcher struct {
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	onChange map[string]func(path string)

	logger *zap.Logger
	done   chan struct{}
}

// NewWatcher creates a watcher with no registered paths.
func NewWatcher(logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		watcher:  fsw,
		onChange: make(map[string]func(string)),
		logger:   logger.With(zap.String("component", "config-watcher")),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch registers a file path and its reload callback. Watching the parent
// directory survives editors that replace files by rename.
func (w *Watcher) Watch(path string, fn func(path string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.onChange[abs] = fn
	w.mu.Unlock()
	return w.watcher.Add(filepath.Dir(abs))
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			w.mu.RLock()
			fn, ok := w.onChange[abs]
			w.mu.RUnlock()
			if ok {
				w.logger.Info("Config file changed, reloading",
					zap.String("path", abs),
					zap.String("op", ev.Op.String()),
				)
				fn(abs)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
