package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"conductor/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk and hands the new
// config to subscribers. It watches the parent directory so that editors
// that replace the file on save are still picked up.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	path        string
	current     *Config
	subscribers []func(*Config)
	debounceDur time.Duration
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a Watcher for path, seeded with the already loaded cfg.
func NewWatcher(path string, cfg *Config) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		path:        abs,
		current:     cfg,
		debounceDur: 200 * time.Millisecond,
		doneCh:      make(chan struct{}),
	}, nil
}

// Subscribe registers fn to be called with every successfully reloaded config.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run watches until ctx is cancelled. It blocks.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)
	defer w.watcher.Close()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	logging.ConfigEvent("watching %s for changes", w.path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(w.debounceDur)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.Get(logging.CategoryConfig).Warn("config watcher error: %v", err)
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

// Done is closed when Run returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.Get(logging.CategoryConfig).Error("config reload failed, keeping previous config: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.Get(logging.CategoryConfig).Error("reloaded config is invalid, keeping previous config: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	subs := append([]func(*Config){}, w.subscribers...)
	w.mu.Unlock()

	logging.ConfigEvent("config reloaded from %s", w.path)
	for _, fn := range subs {
		fn(cfg)
	}
}
