package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.yaml.in/yaml/v3"

	"github.com/odgrim/abathur-swarm-sub016/internal/priority"
)

// LoadWeights reads and validates a scoring-weights YAML file.
func LoadWeights(path string) (priority.Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return priority.Weights{}, fmt.Errorf("read weights file: %w", err)
	}

	var w priority.Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return priority.Weights{}, fmt.Errorf("parse weights file: %w", err)
	}
	if err := w.Validate(); err != nil {
		return priority.Weights{}, fmt.Errorf("invalid weights in %s: %w", path, err)
	}
	return w, nil
}

// WeightWatcher delivers scoring-weight updates as the weights file changes.
// Invalid or partially written files are ignored; the last good weights stay
// in effect.
type WeightWatcher struct {
	path     string
	onChange func(priority.Weights)

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once

	debugLog func(format string, args ...interface{})
}

// WatchWeights watches path and calls onChange with every valid weight set
// read from it, starting with the current file contents when they parse.
// The parent directory is watched rather than the file itself so editors
// that replace the file atomically keep triggering updates.
func WatchWeights(path string, onChange func(priority.Weights)) (*WeightWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create weights watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch weights directory: %w", err)
	}

	ww := &WeightWatcher{
		path:     path,
		onChange: onChange,
		watcher:  watcher,
		done:     make(chan struct{}),
		debugLog: func(format string, args ...interface{}) {}, // no-op by default
	}

	ww.reload()
	go ww.watch()

	return ww, nil
}

// SetDebugLog sets an optional logging function for debug output.
func (ww *WeightWatcher) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		ww.debugLog = fn
	}
}

// watch monitors the directory for changes to the weights file.
func (ww *WeightWatcher) watch() {
	for {
		select {
		case <-ww.done:
			return
		case event, ok := <-ww.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(ww.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			ww.reload()
		case <-ww.watcher.Errors:
			// Ignore errors, keep watching
		}
	}
}

// reload reads the weights file and delivers it when valid.
func (ww *WeightWatcher) reload() {
	w, err := LoadWeights(ww.path)
	if err != nil {
		ww.debugLog("[config.WeightWatcher] ignoring weights update: %v", err)
		return
	}
	ww.debugLog("[config.WeightWatcher] weights updated from %s", ww.path)
	ww.onChange(w)
}

// Close stops the watcher.
func (ww *WeightWatcher) Close() {
	ww.closeOnce.Do(func() {
		close(ww.done)
		ww.watcher.Close()
	})
}
