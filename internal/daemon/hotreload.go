package daemon

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/voiceclock/internal/config"
)

// modPoller polls a file's modification time and calls check when it
// moves forward.
type modPoller struct {
	mu     sync.RWMutex
	logger *slog.Logger
	name   string

	// Path to watch
	path string

	// Last known modification time
	lastModTime time.Time

	// Polling interval
	pollInterval time.Duration

	check func()

	// Control channels
	stopCh chan struct{}
	doneCh chan struct{}

	running bool
}

// SetPollInterval sets the polling interval for file changes.
func (w *modPoller) SetPollInterval(interval time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pollInterval = interval
}

// Path returns the watched file.
func (w *modPoller) Path() string {
	return w.path
}

func (w *modPoller) start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true

	// Get initial modification time
	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	interval := w.pollInterval
	w.mu.Unlock()

	go w.watchLoop(ctx, interval)

	w.logger.Debug(w.name+" watcher started", "path", w.path, "interval", interval)
}

// Stop stops watching the file.
func (w *modPoller) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	// Wait for goroutine to finish
	<-w.doneCh
	w.logger.Debug(w.name + " watcher stopped")
}

func (w *modPoller) watchLoop(ctx context.Context, interval time.Duration) {
	defer close(w.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.changed() {
				w.check()
			}
		}
	}
}

// changed reports whether the file has been modified since the last poll.
func (w *modPoller) changed() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		// File might not exist yet or was deleted
		if !os.IsNotExist(err) {
			w.logger.Debug("failed to stat "+w.name+" file", "path", w.path, "error", err)
		}
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	modTime := info.ModTime()
	if !modTime.After(w.lastModTime) {
		return false
	}
	w.lastModTime = modTime
	w.logger.Debug(w.name+" file changed", "path", w.path, "modTime", modTime)
	return true
}

// SettingsWatcher reloads settings.toml when the CLI or settings dialog
// writes it.
type SettingsWatcher struct {
	modPoller
	store *config.SettingsStore

	onReloadCallback func(settings config.Settings)
	onErrorCallback  func(err error)
}

// NewSettingsWatcher creates a SettingsWatcher for store's file.
func NewSettingsWatcher(store *config.SettingsStore, logger *slog.Logger) *SettingsWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &SettingsWatcher{store: store}
	w.modPoller = modPoller{
		logger:       logger,
		name:         "settings",
		path:         store.Path(),
		pollInterval: 500 * time.Millisecond,
		check:        w.reload,
	}
	return w
}

// SetReloadCallback sets the callback to invoke with newly loaded settings.
func (w *SettingsWatcher) SetReloadCallback(callback func(settings config.Settings)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReloadCallback = callback
}

// SetErrorCallback sets the callback to invoke when the file fails validation.
func (w *SettingsWatcher) SetErrorCallback(callback func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onErrorCallback = callback
}

// Start begins watching the settings file.
func (w *SettingsWatcher) Start(ctx context.Context) error {
	w.start(ctx)
	return nil
}

func (w *SettingsWatcher) reload() {
	w.mu.RLock()
	reloadCallback := w.onReloadCallback
	errorCallback := w.onErrorCallback
	w.mu.RUnlock()

	settings, err := w.store.Load()
	if err != nil {
		w.logger.Warn("settings file changed but validation failed", "error", err)
		if errorCallback != nil {
			errorCallback(err)
		}
		return
	}

	if reloadCallback != nil {
		reloadCallback(*settings)
	}
}

// ConfigWatcher watches the daemon config file for changes and validates new configs.
type ConfigWatcher struct {
	modPoller

	// Current valid config
	currentConfig *config.DaemonConfig

	onReloadCallback func(newConfig *config.DaemonConfig)
	onErrorCallback  func(err error)
}

// NewConfigWatcher creates a ConfigWatcher for path, or the default daemon
// config path if path is empty.
func NewConfigWatcher(path string, logger *slog.Logger) (*ConfigWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		p, err := config.DaemonConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	w := &ConfigWatcher{}
	w.modPoller = modPoller{
		logger:       logger,
		name:         "config",
		path:         path,
		pollInterval: 1 * time.Second,
		check:        w.reload,
	}
	return w, nil
}

// SetReloadCallback sets the callback to invoke when config is successfully reloaded.
func (w *ConfigWatcher) SetReloadCallback(callback func(newConfig *config.DaemonConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReloadCallback = callback
}

// SetErrorCallback sets the callback to invoke when config reload fails validation.
func (w *ConfigWatcher) SetErrorCallback(callback func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onErrorCallback = callback
}

// Start begins watching the config file for changes.
func (w *ConfigWatcher) Start(ctx context.Context, initialConfig *config.DaemonConfig) error {
	w.mu.Lock()
	w.currentConfig = initialConfig
	w.mu.Unlock()

	w.start(ctx)
	return nil
}

// GetCurrentConfig returns the current valid configuration.
func (w *ConfigWatcher) GetCurrentConfig() *config.DaemonConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentConfig
}

func (w *ConfigWatcher) reload() {
	w.mu.RLock()
	reloadCallback := w.onReloadCallback
	errorCallback := w.onErrorCallback
	w.mu.RUnlock()

	newConfig, err := config.LoadDaemonConfigFrom(w.path)
	if err != nil {
		w.logger.Warn("config file changed but validation failed", "error", err)
		if errorCallback != nil {
			errorCallback(err)
		}
		return
	}

	w.mu.Lock()
	w.currentConfig = newConfig
	w.mu.Unlock()

	w.logger.Info("config reloaded successfully")
	if reloadCallback != nil {
		reloadCallback(newConfig)
	}
}
