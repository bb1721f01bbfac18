package node

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/memsync/pkg/log"
)

// Watcher monitors a config file via fsnotify and invokes a reload
// callback when it changes, debounced so editors writing in several steps
// trigger one reload. The node uses it to pick up peers added to the
// config file at runtime.
type Watcher struct {
	path   string
	reload func()
	logger log.Logger

	mu       sync.Mutex
	debounce *time.Timer
	stopped  bool
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, reload func(), logger log.Logger) *Watcher {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Watcher{path: filepath.Clean(path), reload: reload, logger: logger}
}

// Run watches until ctx is canceled. Watch setup failures are logged and
// end the watcher without affecting the node.
func (w *Watcher) Run(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("config watcher: create failed", log.Err(err))
		return
	}
	defer watcher.Close()
	defer w.cancelPending()

	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.logger.Warn("config watcher: watch failed", log.String("path", w.path), log.Err(err))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload(100 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher: error", log.Err(err))
		}
	}
}

// cancelPending stops a debounce timer still waiting to fire so no reload
// runs after the watcher has shut down.
func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
}

func (w *Watcher) debounceReload(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(delay, func() {
		// A timer already firing when the watcher stops must not reload.
		w.mu.Lock()
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}
		w.logger.Info("config changed, reloading", log.String("path", w.path))
		w.reload()
	})
}
