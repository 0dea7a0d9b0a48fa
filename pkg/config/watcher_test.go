package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestFileWatcher_ReloadOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("time_zone: UTC\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	fw, err := NewFileWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer fw.Stop()

	var reloads atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fw.Watch(ctx, func() error {
			reloads.Add(1)
			return nil
		})
	}()

	// Let the watcher register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("time_zone: Europe/Berlin\n"), 0o644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for reloads.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("Reload callback never fired")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after Stop")
	}
}

func TestFileWatcher_DebouncesBursts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	fw, err := NewFileWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer fw.Stop()

	var reloads atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go fw.Watch(ctx, func() error {
		reloads.Add(1)
		return nil
	})

	time.Sleep(100 * time.Millisecond)
	// A burst of rapid writes settles into a single reload.
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
			t.Fatalf("Failed to rewrite config: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(600 * time.Millisecond)
	if got := reloads.Load(); got != 1 {
		t.Errorf("Expected 1 debounced reload, got %d", got)
	}
}

func TestFileWatcher_ReloadErrorKeepsWatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	fw, err := NewFileWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	defer fw.Stop()

	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go fw.Watch(ctx, func() error {
		calls.Add(1)
		return os.ErrInvalid
	})

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 2; i++ {
		if err := os.WriteFile(path, []byte("a: 2\n"), 0o644); err != nil {
			t.Fatalf("Failed to rewrite config: %v", err)
		}
		time.Sleep(500 * time.Millisecond)
	}

	if calls.Load() < 2 {
		t.Errorf("Expected watcher to survive reload errors, got %d calls", calls.Load())
	}
}

func TestNewFileWatcher_EmptyPath(t *testing.T) {
	if _, err := NewFileWatcher("", nil); err == nil {
		t.Fatal("Expected empty path to be rejected")
	}
}
