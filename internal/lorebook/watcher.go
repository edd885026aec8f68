package lorebook

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"chatstage/internal/logging"
)

// Watcher re-imports the lorebook file whenever it changes on disk. Editors
// save through renames as often as writes, so the watch is on the parent
// directory and events are filtered by filename.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	repo     LorebookStore
	path     string
	pending  time.Time // zero when no event is waiting out the debounce
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewWatcher creates a Watcher for the lorebook at path. Call Start to begin.
func NewWatcher(repo LorebookStore, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		repo:     repo,
		path:     path,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.watcher.Close()
		return err
	}
	logging.Lorebook("Watching lorebook: %s", w.path)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryLorebook).Errorf("Failed to close lorebook watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

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
			logging.Get(logging.CategoryLorebook).Errorf("Lorebook watch error: %v", err)

		case <-tick.C:
			w.reloadIfSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) reloadIfSettled(ctx context.Context) {
	w.mu.Lock()
	pending := w.pending
	settled := !pending.IsZero() && time.Since(pending) >= w.debounce
	if settled {
		w.pending = time.Time{}
	}
	w.mu.Unlock()
	if !settled {
		return
	}

	if _, err := Import(ctx, w.repo, w.path); err != nil {
		// A half-written save parses next tick; keep the old entries.
		logging.Get(logging.CategoryLorebook).Warnf("Lorebook reload failed: %v", err)
		return
	}
	logging.Lorebook("Lorebook reloaded: %s", w.path)
}
