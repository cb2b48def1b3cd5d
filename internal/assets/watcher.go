package assets

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rescanDelay coalesces bursts of events (copying a whole language directory).
const rescanDelay = 250 * time.Millisecond

// Watcher rescans a Library when its directories change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	library  *Library
	onChange func()
	done     chan struct{}
	mu       sync.Mutex
	running  bool
	timer    *time.Timer
}

// NewWatcher creates a watcher for library. onChange runs after every
// successful rescan and may be nil.
func NewWatcher(library *Library, onChange func()) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:  watcher,
		library:  library,
		onChange: onChange,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching the library root and its language directories.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.library.Root()); err != nil {
		return err
	}
	w.addLanguageDirs()

	go w.watch()
	return nil
}

// addLanguageDirs watches language directories that exist now. Missing
// ones are picked up when they are created under the root.
func (w *Watcher) addLanguageDirs() {
	for _, dir := range w.library.Dirs() {
		if err := w.watcher.Add(dir); err != nil {
			slog.Debug("not watching asset directory", "dir", dir, "error", err)
		}
	}
}

func (w *Watcher) watch() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			slog.Debug("asset directory changed", "file", event.Name, "op", event.Op.String())
			w.scheduleRescan()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("asset watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleRescan() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(rescanDelay, w.rescan)
}

func (w *Watcher) rescan() {
	if err := w.library.Scan(); err != nil {
		slog.Warn("failed to rescan assets", "error", err)
		return
	}
	w.addLanguageDirs()
	slog.Info("assets rescanned", "root", w.library.Root())

	if w.onChange != nil {
		w.onChange()
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
	return w.watcher.Close()
}
