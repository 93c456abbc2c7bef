// Package watcher reloads the entity store when its seed file changes on
// disk, so a running engine picks up new data without a restart.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc reseeds the store and invalidates caches. Called after the
// debounce window closes on a burst of seed-file changes.
type ReloadFunc func(ctx context.Context) error

// SeedWatcher watches one seed file. The watch is placed on the parent
// directory because editors and generators replace files atomically, which
// breaks a watch on the file itself.
type SeedWatcher struct {
	path     string
	reload   ReloadFunc
	debounce *Debouncer
	logger   *slog.Logger

	fw       *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
	reloads  atomic.Int64
}

// New creates a watcher for the seed file at path. window is the debounce
// quiet period.
func New(path string, window time.Duration, reload ReloadFunc, logger *slog.Logger) *SeedWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeedWatcher{
		path:     filepath.Clean(path),
		reload:   reload,
		debounce: NewDebouncer(window),
		logger:   logger.With("component", "watcher"),
		done:     make(chan struct{}),
	}
}

// Start begins watching. It returns once the watch is established; the
// event loop runs until Stop is called or ctx is cancelled.
func (w *SeedWatcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.fw = fw
	w.logger.Info("watching seed file", "path", w.path)

	go w.loop(ctx)
	return nil
}

func (w *SeedWatcher) loop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("seed file changed", "op", event.Op.String())
			w.debounce.Trigger()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)

		case <-w.debounce.C():
			w.runReload(ctx)

		case <-ctx.Done():
			_ = w.Stop()
			return

		case <-w.done:
			return
		}
	}
}

func (w *SeedWatcher) runReload(ctx context.Context) {
	start := time.Now()
	if err := w.reload(ctx); err != nil {
		w.logger.Error("seed reload failed", "error", err)
		return
	}
	w.reloads.Add(1)
	w.logger.Info("seed reloaded", "duration_ms", time.Since(start).Milliseconds())
}

// Reloads returns how many reloads have completed successfully.
func (w *SeedWatcher) Reloads() int64 {
	return w.reloads.Load()
}

// Stop ends the watch. Safe to call multiple times.
func (w *SeedWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.debounce.Stop()
		if w.fw != nil {
			err = w.fw.Close()
		}
	})
	return err
}
