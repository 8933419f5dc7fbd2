package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goosehq/goose/internal/event"
	"github.com/goosehq/goose/internal/logging"
)

// Watcher publishes a config.changed event when the config file is
// rewritten on disk, letting long-running sessions pick up new settings
// without a restart.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher for the store's config file. The config
// directory itself is watched because atomic renames replace the inode.
func NewWatcher(store *Store) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &Error{Kind: ErrFile, Err: err}
	}

	dir := filepath.Dir(store.Path())
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, &Error{Kind: ErrDirectory, Err: err}
	}

	return &Watcher{
		watcher: w,
		path:    store.Path(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.run()
}

// Stop stops the watcher and waits for the goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
	w.started = false
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	// Editors and the atomic-write protocol both produce bursts of
	// events; debounce so one save publishes one change.
	var pending *time.Timer
	fire := func() {
		logging.Debug().Str("path", w.path).Msg("config file changed")
		event.Publish(event.Event{
			Type: event.ConfigChanged,
			Data: event.ConfigChangedData{Path: w.path},
		})
	}

	for {
		select {
		case <-w.stopCh:
			if pending != nil {
				pending.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(100*time.Millisecond, fire)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Msg("config watcher error")
		}
	}
}
