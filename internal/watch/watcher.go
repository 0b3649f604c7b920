// Package watch re-runs conflict detection when files in the workspace
// change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"driftwatch/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultIgnore lists directory and file names never watched.
var DefaultIgnore = []string{".git", ".driftwatch", "*.tmp-*"}

// ChangeFunc receives the workspace-relative paths that changed during one
// settled burst of events.
type ChangeFunc func(ctx context.Context, paths []string) error

// Options configure a Watcher.
type Options struct {
	// Quiet period after the last event before OnChange runs (default 500ms)
	Debounce time.Duration

	// Glob patterns matched against base names and relative paths
	Ignore []string

	OnChange ChangeFunc
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Batches       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// Watcher watches a directory tree with fsnotify and batches bursts of
// changes into single OnChange calls.
type Watcher struct {
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	root     string
	opts     Options
	pending  map[string]struct{}
	lastSeen time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
	closed   bool

	stats Stats
}

// NewWatcher creates a watcher for the tree below root.
func NewWatcher(root string, opts Options) (*Watcher, error) {
	if opts.OnChange == nil {
		return nil, errors.New("watch: OnChange is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	opts.Ignore = append(slices.Clone(DefaultIgnore), opts.Ignore...)

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: fw,
		root:    abs,
		opts:    opts,
		pending: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start registers every directory below the root and begins processing
// events in the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.closed {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Watch("Watching %s (%d directories, debounce %s)", w.root, len(w.watcher.WatchList()), w.opts.Debounce)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit. An OnChange
// call in progress finishes first. A stopped watcher cannot be restarted.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	wasRunning := w.running
	w.running = false
	w.closed = true
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
	}
	logging.Watch("Watcher stopped")
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.opts.Debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("fsnotify error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || w.ignored(rel) {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
		// New directories are watched too, so files created in them count.
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				logging.Get(logging.CategoryWatch).Warn("failed to watch new directory %s: %v", rel, err)
			}
		}
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}
	logging.WatchDebug("%s event for %s", eventType, rel)

	now := time.Now()
	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventTime = now
	w.stats.LastEventPath = filepath.ToSlash(rel)
	w.stats.LastEventType = eventType
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	w.lastSeen = now
	w.mu.Unlock()
}

// flush hands the pending batch to OnChange once no event arrived for the
// debounce period.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 || time.Since(w.lastSeen) < w.opts.Debounce {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.stats.Batches++
	w.mu.Unlock()

	slices.Sort(paths)
	logging.Watch("%d path(s) changed, re-checking", len(paths))
	if err := w.opts.OnChange(ctx, paths); err != nil {
		logging.Get(logging.CategoryWatch).Error("change handler failed: %v", err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
	}
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, path); rel != "." && w.ignored(rel) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		return nil
	})
}

func (w *Watcher) ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return true
	}
	for _, pattern := range w.opts.Ignore {
		for _, part := range strings.Split(rel, "/") {
			if ok, _ := filepath.Match(pattern, part); ok {
				return true
			}
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// GetStats returns the current watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the watcher is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
