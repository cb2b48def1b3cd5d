package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/voiceclock/internal/config"
)

// ManifestName is the optional manifest file at the library root.
const ManifestName = "manifest.yaml"

// Manifest overrides the default library layout.
//
//	formats: [".mp3", ".ogg"]
//	languages:
//	  bn:
//	    dir: bangla
//	    label: বাংলা
type Manifest struct {
	Formats   []string                        `yaml:"formats,omitempty"`
	Languages map[config.Language]LanguageDir `yaml:"languages,omitempty"`
}

// LanguageDir describes where one language's clips live.
type LanguageDir struct {
	Dir   string `yaml:"dir,omitempty"`   // Relative to the library root unless absolute
	Label string `yaml:"label,omitempty"` // Shown in the settings dialog
}

// LoadManifest reads root/manifest.yaml. Returns nil if it doesn't exist.
func LoadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read asset manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse asset manifest: %w", err)
	}

	for lang := range m.Languages {
		if !lang.Valid() {
			return nil, fmt.Errorf("asset manifest: %w: %q", config.ErrInvalidLanguage, lang)
		}
	}
	for _, f := range normalizeFormats(m.Formats) {
		if !isSupportedFormat(f) {
			return nil, fmt.Errorf("asset manifest: unsupported format %q", f)
		}
	}

	return &m, nil
}

// apply overlays the manifest onto the default directories and labels.
func (m *Manifest) apply(root string, dirs, labels map[config.Language]string) {
	for lang, entry := range m.Languages {
		if entry.Dir != "" {
			dir := entry.Dir
			if !filepath.IsAbs(dir) {
				dir = filepath.Join(root, dir)
			}
			dirs[lang] = dir
		}
		if entry.Label != "" {
			labels[lang] = entry.Label
		}
	}
}

func isSupportedFormat(ext string) bool {
	for _, f := range config.SupportedFormats() {
		if f == ext {
			return true
		}
	}
	return false
}
