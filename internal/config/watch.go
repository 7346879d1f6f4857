package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const DefaultDebounce = 750 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands every valid revision to
// the apply callback. Invalid revisions are logged and skipped; the last good config stays.
type Watcher struct {
	log      *zap.Logger
	path     string
	flags    *pflag.FlagSet
	debounce time.Duration
	apply    func(prev, next *Config)

	mu      sync.Mutex
	current *Config
}

// NewWatcher starts from current, the config the process is already running with.
func NewWatcher(log *zap.Logger, path string, flags *pflag.FlagSet, current *Config, apply func(prev, next *Config)) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		log:      log.Named("config"),
		path:     path,
		flags:    flags,
		debounce: DefaultDebounce,
		apply:    apply,
		current:  current,
	}
}

// Current returns the last applied config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload reads the file once and applies it if valid.
func (w *Watcher) Reload() error {
	next, err := Load(w.path, w.flags)
	if err != nil {
		w.log.Warn("reload failed; keeping current config", zap.String("path", w.path), zap.Error(err))
		return err
	}
	w.mu.Lock()
	prev := w.current
	w.current = next
	w.mu.Unlock()

	w.log.Info("config reloaded", zap.String("path", w.path))
	if w.apply != nil {
		w.apply(prev, next)
	}
	return nil
}

// Run watches the file's directory until ctx is cancelled. Editors often replace the file
// instead of writing it, so the directory is watched and events are filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	abs, err := filepath.Abs(w.path)
	if err != nil {
		abs = w.path
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(abs)
	if err := fw.Add(dir); err != nil {
		return err
	}
	w.log.Debug("watching config", zap.String("path", abs))

	var t *time.Timer
	defer func() {
		if t != nil {
			t.Stop()
		}
	}()
	reset := func() {
		if t != nil {
			t.Stop()
		}
		t = time.AfterFunc(w.debounce, func() { _ = w.Reload() })
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Name != abs {
				continue
			}
			// Remove means the file is gone; wait for it to reappear.
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				reset()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}
