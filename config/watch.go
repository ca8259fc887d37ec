package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file on change. A reload that fails validation
// is dropped; the previous config stays in force. Editors that write via
// rename are handled by watching the directory, not the file.
type Watcher struct {
	path     string
	cooldown time.Duration
	log      *zap.Logger
	onReload func(*Config)

	mu         sync.Mutex
	lastReload time.Time
}

func NewWatcher(path string, cooldown time.Duration, log *zap.Logger, onReload func(*Config)) *Watcher {
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{path: path, cooldown: cooldown, log: log.Named("config"), onReload: onReload}
}

// Run blocks until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.maybeReload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) maybeReload() {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.cooldown {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("reload rejected", zap.Error(err))
		return
	}
	w.log.Info("config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
