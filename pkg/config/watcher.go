package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher watches a configuration file for changes and triggers
// reloads. Writes are debounced so that editors that save in several
// events (write + rename + chmod) trigger a single reload.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	path    string

	// debounceInterval is the quiet period required before a reload fires.
	debounceInterval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// NewFileWatcher creates a watcher for the given config file path.
func NewFileWatcher(path string, logger *slog.Logger) (*FileWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch path cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:          watcher,
		logger:           logger.With("component", "config.watcher"),
		path:             path,
		debounceInterval: 250 * time.Millisecond,
		stopCh:           make(chan struct{}),
	}, nil
}

// Watch starts watching for changes and calls onReload after each settled
// batch of events. It blocks until the context is cancelled or Stop is
// called. Reload errors are logged and watching continues; a bad config
// write must not take down a ledger running on the last good config.
func (fw *FileWatcher) Watch(ctx context.Context, onReload func() error) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	fw.running = true
	fw.mu.Unlock()

	// Watch the directory rather than the file: editors replace files by
	// rename, which drops a watch registered on the file itself.
	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	fw.logger.Info("watching configuration file", "path", fw.path)

	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fw.stopCh:
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(fw.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(fw.debounceInterval)
				timerCh = timer.C
			} else {
				timer.Reset(fw.debounceInterval)
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := onReload(); err != nil {
				fw.logger.Error("config reload failed, keeping previous configuration", "error", err)
			} else {
				fw.logger.Info("configuration reloaded", "path", fw.path)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Error("config watch error", "error", err)
		}
	}
}

// Stop stops the watcher.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.running {
		return nil
	}
	fw.running = false
	close(fw.stopCh)
	return fw.watcher.Close()
}
