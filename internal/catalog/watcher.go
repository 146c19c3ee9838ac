package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"zonegate/internal/logging"
)

// Watcher reloads a dataset file into a MemoryCatalog whenever it changes.
// A file that fails to parse is logged and the previous data keeps serving.
// With a nil catalog only the OnReload hooks run.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	catalog     *MemoryCatalog
	path        string
	dir         string
	pendingAt   time.Time
	debounceDur time.Duration
	onReload    []func(*Dataset)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity.
type WatcherStats struct {
	Events        int
	Reloads       int
	Errors        int
	LastEventType string
	LastReload    time.Time
	LastError     string
}

// NewWatcher creates a watcher for the dataset file at path.
func NewWatcher(path string, catalog *MemoryCatalog) (*Watcher, error) {
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
		catalog:     catalog,
		path:        abs,
		dir:         filepath.Dir(abs),
		debounceDur: 200 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// OnReload registers fn to run after every successful reload.
func (w *Watcher) OnReload(fn func(*Dataset)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Editors often replace the file rather than write it, so watch the directory.
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Catalog("Watcher: watching %s", w.path)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.CatalogWarn("Watcher: error closing watcher: %v", err)
	}
	logging.Catalog("Watcher: stopped")
}

// Stats returns a copy of the watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
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
			logging.CatalogWarn("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.stats.LastError = err.Error()
			w.mu.Unlock()
		case <-ticker.C:
			w.processPending()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Remove != 0:
		eventType = "delete"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return
	}
	logging.CatalogDebug("Watcher: %s event for %s", eventType, event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Events++
	w.stats.LastEventType = eventType
	if eventType == "delete" || eventType == "rename" {
		// Keep serving the last good dataset until the file comes back.
		return
	}
	w.pendingAt = time.Now()
}

func (w *Watcher) processPending() {
	w.mu.Lock()
	if w.pendingAt.IsZero() || time.Since(w.pendingAt) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pendingAt = time.Time{}
	w.mu.Unlock()

	w.Reload()
}

// Reload reads the dataset file now and swaps it into the catalog.
func (w *Watcher) Reload() error {
	ds, err := LoadDataset(w.path)
	w.mu.Lock()
	if err != nil {
		w.stats.Errors++
		w.stats.LastError = err.Error()
		w.mu.Unlock()
		logging.CatalogWarn("Watcher: reload failed, keeping previous dataset: %v", err)
		return err
	}
	w.stats.Reloads++
	w.stats.LastReload = time.Now()
	hooks := append([]func(*Dataset){}, w.onReload...)
	w.mu.Unlock()

	if w.catalog != nil {
		w.catalog.Replace(ds)
	}
	for _, fn := range hooks {
		fn(ds)
	}
	logging.Catalog("Watcher: reloaded %s", w.path)
	return nil
}
