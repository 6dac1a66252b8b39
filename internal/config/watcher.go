package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mindrian/pkg/logger"
)

const reloadDebounce = 100 * time.Millisecond

// ReloadFunc is called with the freshly loaded config after the file changes.
type ReloadFunc func(cfg *Config)

// Watcher reloads the config file when it is written and notifies listeners.
type Watcher struct {
	watcher   *fsnotify.Watcher
	path      string
	stopCh    chan struct{}
	stopOnce  sync.Once
	mu        sync.Mutex
	timer     *time.Timer
	listeners []ReloadFunc
	load      func() (*Config, error)
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: w,
		path:    filepath.Clean(path),
		stopCh:  make(chan struct{}),
		load:    Reload,
	}, nil
}

// OnReload registers a listener.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Start watches the directory containing the config file. Editors often
// replace files by rename, so watching the file itself misses updates.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("Config reload failed, keeping previous settings")
		return
	}

	w.mu.Lock()
	listeners := append([]ReloadFunc(nil), w.listeners...)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
	logger.Info().Str("path", w.path).Msg("Config reloaded")
}

// Stop stops watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
	})
}
