package store

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces bursts of writes into one reload.
const reloadDelay = 150 * time.Millisecond

// FileWatcher keeps a Store in step with a history file written by another
// process. Appends are merged with Hydrate; a replaced or removed file
// (prune, clear) triggers a full Reload.
type FileWatcher struct {
	store    *Store
	filePath string
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu       sync.Mutex
	timer    *time.Timer
	replaced bool // a pending reload must replace, not merge
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewFileWatcher creates a watcher for the history file at filePath.
func NewFileWatcher(store *Store, filePath string, logger *slog.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FileWatcher{
		store:    store,
		filePath: filePath,
		logger:   logger,
		fsw:      fsw,
	}, nil
}

// Start begins watching. The directory is watched rather than the file so
// that a file replaced by rename is still seen.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return nil
	}
	if err := fw.fsw.Add(filepath.Dir(fw.filePath)); err != nil {
		return err
	}

	fw.running = true
	fw.stopCh = make(chan struct{})
	fw.doneCh = make(chan struct{})
	go fw.loop()
	return nil
}

func (fw *FileWatcher) loop() {
	defer close(fw.doneCh)
	name := filepath.Base(fw.filePath)

	for {
		select {
		case event, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				fw.schedule(true)
			case event.Has(fsnotify.Write):
				fw.schedule(false)
			}

		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("history watcher error", "error", err)

		case <-fw.stopCh:
			return
		}
	}
}

// schedule arms the reload timer. A replacement seen at any point in the
// burst upgrades the reload to a full one.
func (fw *FileWatcher) schedule(replaced bool) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if !fw.running {
		return
	}
	fw.replaced = fw.replaced || replaced
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(reloadDelay, fw.reload)
}

func (fw *FileWatcher) reload() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return
	}
	replaced := fw.replaced
	fw.replaced = false
	fw.timer = nil
	fw.mu.Unlock()

	var err error
	if replaced {
		fw.logger.Debug("history file replaced, reloading", "file", fw.filePath)
		err = fw.store.Reload()
	} else {
		fw.logger.Debug("history appended, hydrating", "file", fw.filePath)
		err = fw.store.Hydrate()
	}
	if err != nil {
		fw.logger.Warn("failed to refresh history", "file", fw.filePath, "error", err)
	}
}

// Stop stops watching. Safe to call more than once.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = false
	if fw.timer != nil {
		fw.timer.Stop()
		fw.timer = nil
	}
	close(fw.stopCh)
	fw.mu.Unlock()

	<-fw.doneCh
	return fw.fsw.Close()
}
