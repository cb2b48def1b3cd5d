package audio

import (
	"log/slog"
	"sync"

	"github.com/jmylchreest/voiceclock/internal/config"
)

// Manager owns the speaker and applies the daemon's audio settings.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger
	player *Player
	config *config.DaemonConfig
}

// NewManager creates a new audio manager.
func NewManager(cfg *config.DaemonConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = config.DefaultDaemonConfig()
	}

	m := &Manager{
		logger: logger,
		player: NewPlayer(logger),
		config: cfg,
	}
	m.applyConfig()

	return m
}

// applyConfig pushes the configured volume to the player.
func (m *Manager) applyConfig() {
	m.mu.RLock()
	volume := m.config.Audio.Volume
	m.mu.RUnlock()

	// Config uses 0-100, player uses 0.0-1.0
	m.player.SetVolume(float64(volume) / 100.0)
}

// Play starts the clip at path and returns without waiting for it to
// finish. Errors cover decoding and speaker setup only.
func (m *Manager) Play(path string) error {
	if err := m.player.Play(path); err != nil {
		return err
	}
	m.logger.Debug("playing clip", "path", path)
	return nil
}

// Preload decodes clips ahead of their first announcement.
func (m *Manager) Preload(paths ...string) {
	loaded := 0
	for _, path := range paths {
		if err := m.player.Preload(path); err != nil {
			m.logger.Warn("failed to preload clip", "path", path, "error", err)
			continue
		}
		loaded++
	}
	m.logger.Debug("preloaded clips", "count", loaded)
}

// Playing reports whether a clip is currently being played.
func (m *Manager) Playing() bool {
	return m.player.Playing()
}

// Volume returns the current volume (0.0 to 1.0).
func (m *Manager) Volume() float64 {
	return m.player.Volume()
}

// Reload drops decoded clips so the next play reads them from disk.
// Called after the asset library is rescanned.
func (m *Manager) Reload() {
	m.player.ClearCache()
	m.logger.Debug("audio manager reloaded")
}

// UpdateConfig applies a hot-reloaded daemon configuration.
func (m *Manager) UpdateConfig(cfg *config.DaemonConfig) {
	if cfg == nil {
		return
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	m.applyConfig()
	m.logger.Debug("audio manager config updated", "volume", cfg.Audio.Volume)
}

// Stop cuts off playback and releases the speaker.
func (m *Manager) Stop() {
	m.player.Close()
	m.logger.Debug("audio manager stopped")
}
