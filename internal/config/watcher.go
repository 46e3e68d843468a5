package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mcpbridge/pkg/logging"
)

// DefaultDebounceInterval is the time to wait after the last file change
// before triggering a reload. Editors typically produce several events per
// save.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher monitors the servers directory and reloads the definition store
// when files change. A reload replaces the store's whole set; instances
// already running from an old definition keep running until stopped or swept.
type Watcher struct {
	mu sync.Mutex

	configPath string
	store      *Store
	debounce   time.Duration

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	wg        sync.WaitGroup

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher that keeps store in sync with the servers
// directory under configPath.
func NewWatcher(configPath string, store *Store) *Watcher {
	return &Watcher{
		configPath: configPath,
		store:      store,
		debounce:   DefaultDebounceInterval,
	}
}

// Start begins watching. No-op when already running.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsWatcher != nil {
		return nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Join(w.configPath, serversDir)
	if err := fsWatcher.Add(dir); err != nil {
		// The directory may not exist yet; watch the parent so its creation
		// is picked up.
		if parentErr := fsWatcher.Add(w.configPath); parentErr != nil {
			_ = fsWatcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.fsWatcher = fsWatcher
	w.stopCh = make(chan struct{})
	w.wg.Add(1)
	go w.watchLoop(fsWatcher, w.stopCh)

	logging.Info("ConfigWatcher", "Watching %s for server definition changes", dir)
	return nil
}

// Stop halts the watcher. No-op when already stopped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.fsWatcher == nil {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	_ = w.fsWatcher.Close()
	w.fsWatcher = nil
	w.mu.Unlock()

	w.wg.Wait()

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()
}

func (w *Watcher) watchLoop(fsWatcher *fsnotify.Watcher, stopCh chan struct{}) {
	defer w.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if !relevantEvent(event) {
				continue
			}
			logging.Debug("ConfigWatcher", "Change detected: %s %s", event.Op, event.Name)
			w.scheduleReload()
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("ConfigWatcher", "Watch error: %v", err)
		}
	}
}

// relevantEvent filters the event stream down to YAML writes, creations,
// removals and renames.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := event.Name
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") ||
		filepath.Base(name) == serversDir
}

// scheduleReload resets the debounce timer so rapid successive events
// collapse into a single reload.
func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	defs, err := LoadServerDefinitions(w.configPath)
	if err != nil {
		logging.Error("ConfigWatcher", err, "Failed to reload server definitions")
		return
	}
	w.store.Replace(defs)
	logging.Info("ConfigWatcher", "Reloaded %d server definitions", len(defs))
}
