// Package config handles settings and daemon configuration loading and parsing.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// AppName is used for config and data directory names.
const AppName = "voiceclock"

// Language selects which set of recorded clips is played.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageBangla  Language = "bn"
)

// ValidLanguages returns all supported languages.
func ValidLanguages() []Language {
	return []Language{LanguageEnglish, LanguageBangla}
}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageBangla
}

// DisplayName returns the human-readable language name.
func (l Language) DisplayName() string {
	switch l {
	case LanguageEnglish:
		return "English"
	case LanguageBangla:
		return "বাংলা (Bangla)"
	default:
		return string(l)
	}
}

// ParseLanguage parses a language code or name.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english":
		return LanguageEnglish, nil
	case "bn", "bangla", "bengali":
		return LanguageBangla, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
}

// Interval is the number of minutes between announcements.
type Interval int

const (
	Interval15 Interval = 15
	Interval30 Interval = 30
	Interval60 Interval = 60
)

// ValidIntervals returns all supported intervals, finest first.
func ValidIntervals() []Interval {
	return []Interval{Interval15, Interval30, Interval60}
}

// Valid reports whether i is a supported interval.
func (i Interval) Valid() bool {
	return i == Interval15 || i == Interval30 || i == Interval60
}

// Minutes returns the interval as a plain minute count.
func (i Interval) Minutes() int {
	return int(i)
}

// String returns the label shown in the settings dialog.
func (i Interval) String() string {
	if i == Interval60 {
		return "Every hour"
	}
	return fmt.Sprintf("Every %d minutes", int(i))
}

// ParseInterval accepts "15", "30", "60", "15m", "30m", "60m" or "1h".
func ParseInterval(s string) (Interval, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "1h" || v == "hourly" {
		return Interval60, nil
	}
	v = strings.TrimSuffix(v, "m")
	n, err := strconv.Atoi(v)
	if err != nil || !Interval(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return Interval(n), nil
}

// Validation errors.
var (
	ErrInvalidLanguage = errors.New("language must be one of: en, bn")
	ErrInvalidInterval = errors.New("interval must be one of: 15, 30, 60")
)

// Settings is the user-facing configuration.
// Loaded from ~/.config/voiceclock/settings.toml
type Settings struct {
	Language Language `toml:"language"`
	Interval Interval `toml:"interval"` // minutes
	Muted    bool     `toml:"muted"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Language: LanguageEnglish,
		Interval: Interval60,
		Muted:    false,
	}
}

// Validate checks that every field is a member of its enumerated set.
func (s *Settings) Validate() error {
	if !s.Language.Valid() {
		return fmt.Errorf("%w, got %q", ErrInvalidLanguage, s.Language)
	}
	if !s.Interval.Valid() {
		return fmt.Errorf("%w, got %d", ErrInvalidInterval, s.Interval)
	}
	return nil
}

// ConfigDir returns the voiceclock config directory.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// SettingsPath returns the path to the settings file.
func SettingsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "settings.toml"), nil
}

// SettingsStore persists Settings as TOML.
type SettingsStore struct {
	path string
}

// NewSettingsStore creates a store for the given path.
// If path is empty, uses the default settings path.
func NewSettingsStore(path string) (*SettingsStore, error) {
	if path == "" {
		p, err := SettingsPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get settings path: %w", err)
		}
		path = p
	}
	return &SettingsStore{path: path}, nil
}

// Path returns the file backing the store.
func (s *SettingsStore) Path() string {
	return s.path
}

// Load reads settings from disk.
// Returns defaults if the file doesn't exist. Fields missing from the
// file keep their default values.
func (s *SettingsStore) Load() (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := toml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return settings, nil
}

// Save validates and writes settings to disk.
func (s *SettingsStore) Save(settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return writeFileAtomic(s.path, data)
}

// legacySettings mirrors the JSON file written by earlier releases.
type legacySettings struct {
	Language *string `json:"language"`
	Interval *int    `json:"interval"`
	Muted    *bool   `json:"muted"`
}

// ImportLegacy reads a settings.json written by earlier releases.
// Missing keys fall back to defaults.
func ImportLegacy(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy settings: %w", err)
	}

	var legacy legacySettings
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to parse legacy settings: %w", err)
	}

	settings := DefaultSettings()
	if legacy.Language != nil {
		settings.Language = Language(*legacy.Language)
	}
	if legacy.Interval != nil {
		settings.Interval = Interval(*legacy.Interval)
	}
	if legacy.Muted != nil {
		settings.Muted = *legacy.Muted
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid legacy settings: %w", err)
	}
	return settings, nil
}

// writeFileAtomic writes data via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	return os.Rename(tmpPath, path)
}
