package vocab

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store when its file changes.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onReload func([]string)

	stopCh       chan struct{}
	stopOnce     sync.Once
	mu           sync.Mutex
	pendingTimer *time.Timer
	reloads      int
}

// NewWatcher watches the store's file. The parent directory is watched
// because editors usually replace the file rather than write it in place.
// onReload, if set, receives the new term list after each successful reload.
func NewWatcher(store *Store, debounceMs int, onReload func([]string)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(store.Path())
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	debounce := defaultDebounce
	if debounceMs > 0 {
		debounce = time.Duration(debounceMs) * time.Millisecond
	}

	L_debug("vocab: watching", "dir", dir, "file", filepath.Base(store.Path()))

	return &Watcher{
		store:    store,
		watcher:  fsWatcher,
		debounce: debounce,
		onReload: onReload,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. This spawns a goroutine internally.
func (w *Watcher) Start() {
	go w.run()
}

func (w *Watcher) run() {
	for {
		select {
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
			L_warn("vocab: watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.store.Path()) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	L_trace("vocab: file event", "path", event.Name, "op", event.Op.String())
	w.triggerReload()
}

// triggerReload schedules a reload with debouncing.
func (w *Watcher) triggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.pendingTimer = nil
	w.mu.Unlock()

	if err := w.store.Reload(); err != nil {
		L_warn("vocab: reload failed, keeping previous terms", "error", err)
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	terms := w.store.Terms()
	L_info("vocab: reloaded", "terms", len(terms))
	if w.onReload != nil {
		w.onReload(terms)
	}
}

// Reloads returns how many successful reloads have happened.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Stop stops watching for changes.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		if w.pendingTimer != nil {
			w.pendingTimer.Stop()
		}
		w.mu.Unlock()

		err = w.watcher.Close()
	})
	return err
}
