package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that can be unmarshaled from human-readable strings.
// Supports formats like "5s", "10s", "1m", or integer milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML parsing.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)

	// Integer milliseconds
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: must be like '5s', '1m' or milliseconds: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Milliseconds returns the duration in milliseconds.
func (d Duration) Milliseconds() int {
	return int(time.Duration(d).Milliseconds())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Sampler cadence bounds. The upper bound keeps every boundary minute
// observed at least once.
const (
	MinPollInterval = 1 * time.Second
	MaxPollInterval = 30 * time.Second
)

// DaemonConfig is the configuration for voiceclockd.
// Loaded from ~/.config/voiceclock/voiceclockd.toml
type DaemonConfig struct {
	Scheduler     SchedulerConfig     `toml:"scheduler"`
	Assets        AssetsConfig        `toml:"assets"`
	Audio         AudioConfig         `toml:"audio"`
	Notifications NotificationsConfig `toml:"notifications"`
	History       HistoryConfig       `toml:"history"`
}

// SchedulerConfig contains clock sampling settings.
type SchedulerConfig struct {
	PollInterval Duration `toml:"poll_interval"` // e.g. "10s"
}

// AssetsConfig locates the recorded clip library.
type AssetsConfig struct {
	Dir     string   `toml:"dir"`     // Empty = ~/.local/share/voiceclock/assets
	Formats []string `toml:"formats"` // Extensions tried in order
	Watch   bool     `toml:"watch"`   // Rescan when clips change
}

// AudioConfig contains playback settings.
type AudioConfig struct {
	Volume int `toml:"volume"` // 0-100
}

// NotificationsConfig contains desktop toast settings.
type NotificationsConfig struct {
	Enabled       bool     `toml:"enabled"`        // Toast on each announcement
	Timeout       Duration `toml:"timeout"`        // Toast expiry
	SettingsSaved bool     `toml:"settings_saved"` // Toast when settings change
}

// HistoryConfig contains announcement history settings.
type HistoryConfig struct {
	Enabled bool `toml:"enabled"`
	Length  int  `toml:"length"` // Max announcements kept (0 = unlimited)
}

// SupportedFormats lists the clip extensions the player can decode.
func SupportedFormats() []string {
	return []string{".ogg", ".mp3", ".wav"}
}

// DefaultDaemonConfig returns a new DaemonConfig with default values.
func DefaultDaemonConfig() *DaemonConfig {
	return &DaemonConfig{
		Scheduler: SchedulerConfig{
			PollInterval: Duration(10 * time.Second),
		},
		Assets: AssetsConfig{
			Dir:     "",
			Formats: []string{".ogg", ".mp3"},
			Watch:   true,
		},
		Audio: AudioConfig{
			Volume: 100,
		},
		Notifications: NotificationsConfig{
			Enabled:       true,
			Timeout:       Duration(5 * time.Second),
			SettingsSaved: true,
		},
		History: HistoryConfig{
			Enabled: true,
			Length:  500,
		},
	}
}

// DaemonConfigPath returns the path to the daemon config file.
func DaemonConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "voiceclockd.toml"), nil
}

// LoadDaemonConfig loads the daemon configuration from the default path.
func LoadDaemonConfig() (*DaemonConfig, error) {
	path, err := DaemonConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return LoadDaemonConfigFrom(path)
}

// LoadDaemonConfigFrom loads the daemon configuration from path.
// If the file doesn't exist, returns the default configuration.
func LoadDaemonConfigFrom(path string) (*DaemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultDaemonConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	cfg := DefaultDaemonConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveDaemonConfig saves the daemon configuration to path.
func SaveDaemonConfig(cfg *DaemonConfig, path string) error {
	if path == "" {
		p, err := DaemonConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return writeFileAtomic(path, data)
}

// Validate checks if the configuration is valid.
func (c *DaemonConfig) Validate() error {
	poll := c.Scheduler.PollInterval.Duration()
	if poll < MinPollInterval || poll > MaxPollInterval {
		return fmt.Errorf("poll_interval must be between %s and %s, got %s", MinPollInterval, MaxPollInterval, poll)
	}

	if len(c.Assets.Formats) == 0 {
		return fmt.Errorf("at least one asset format is required")
	}
	for _, f := range c.Assets.Formats {
		if !slices.Contains(SupportedFormats(), strings.ToLower(f)) {
			return fmt.Errorf("unsupported asset format %q, must be one of: %v", f, SupportedFormats())
		}
	}

	if c.Audio.Volume < 0 || c.Audio.Volume > 100 {
		return fmt.Errorf("volume must be between 0 and 100, got %d", c.Audio.Volume)
	}

	if c.Notifications.Timeout < 0 {
		return fmt.Errorf("notification timeout must not be negative")
	}

	if c.History.Length < 0 {
		return fmt.Errorf("history length must not be negative, got %d", c.History.Length)
	}

	return nil
}

// AssetsPath returns the asset library directory, expanding ~ and
// falling back to the data directory.
func (c *DaemonConfig) AssetsPath() (string, error) {
	if c.Assets.Dir != "" {
		return expandPath(c.Assets.Dir), nil
	}
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "assets"), nil
}

// DataDir returns the voiceclock data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, AppName), nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
