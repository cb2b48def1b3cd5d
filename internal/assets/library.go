// Package assets maps boundary times to pre-recorded announcement clips.
//
// Clips live under <root>/<language>/<HH>_<MM>.<ext>, where HH is the
// 12-hour clock hour (01-12) and MM one of 00, 15, 30 or 45. Coarser
// intervals reuse the 15-minute clips at a subset of boundaries.
package assets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/jmylchreest/voiceclock/internal/config"
)

// BucketMinutes is the finest supported interval.
const BucketMinutes = 15

const (
	// SlotsPerLanguage is the number of 24-hour boundary slots per language.
	SlotsPerLanguage = 24 * 60 / BucketMinutes
	// ClipsPerLanguage is the number of files a complete language directory holds.
	ClipsPerLanguage = 12 * 60 / BucketMinutes
)

// Errors returned by Resolve.
var (
	ErrMissingAsset = errors.New("missing audio asset")
	ErrInvalidSlot  = errors.New("not a boundary slot")
)

// MissingAssetError reports a hole in the asset library.
type MissingAssetError struct {
	Hour     int
	Minute   int
	Language config.Language
	Clip     string // e.g. "03_45"
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("missing audio asset for %02d:%02d (%s): no %s clip", e.Hour, e.Minute, e.Language, e.Clip)
}

// Unwrap lets errors.Is match ErrMissingAsset.
func (e *MissingAssetError) Unwrap() error {
	return ErrMissingAsset
}

var clipPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])_(00|15|30|45)(\.[A-Za-z0-9]+)$`)

// ClipName returns the clip base name for a 24-hour time, e.g. 15:30 -> "03_30".
func ClipName(hour, minute int) string {
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%02d_%02d", h, minute)
}

// Bucket snaps minute down to the nearest clip boundary.
func Bucket(minute int) int {
	return minute - minute%BucketMinutes
}

// Checklist returns the file names needed to announce every boundary of
// interval, in clock order.
func Checklist(interval config.Interval, ext string) []string {
	names := make([]string, 0, ClipsPerLanguage)
	for hour := 1; hour <= 12; hour++ {
		for minute := 0; minute < 60; minute += interval.Minutes() {
			names = append(names, ClipName(hour, minute)+ext)
		}
	}
	return names
}

type indexKey struct {
	lang config.Language
	clip string
}

// Missing describes one absent clip found by Verify.
type Missing struct {
	Language config.Language `json:"language" yaml:"language"`
	Clip     string          `json:"clip" yaml:"clip"`
	Dir      string          `json:"dir" yaml:"dir"`
}

// Library resolves clips from an on-disk asset directory.
type Library struct {
	mu     sync.RWMutex
	logger *slog.Logger

	root    string
	formats []string

	// Per-language directory and label, from the manifest or defaults
	dirs   map[config.Language]string
	labels map[config.Language]string

	index map[indexKey]string
}

// NewLibrary creates a Library rooted at root. formats lists clip
// extensions in order of preference.
func NewLibrary(root string, formats []string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	if len(formats) == 0 {
		formats = []string{".ogg", ".mp3"}
	}

	l := &Library{
		logger:  logger,
		root:    root,
		formats: normalizeFormats(formats),
		index:   make(map[indexKey]string),
	}
	l.dirs, l.labels = defaultLayout(root)
	return l
}

// Root returns the library root directory.
func (l *Library) Root() string {
	return l.root
}

// Scan (re)builds the clip index from disk.
func (l *Library) Scan() error {
	if _, err := os.Stat(l.root); err != nil {
		return fmt.Errorf("asset directory %s: %w", l.root, err)
	}

	manifest, err := LoadManifest(l.root)
	if err != nil {
		return err
	}

	l.mu.RLock()
	formats := l.formats
	l.mu.RUnlock()

	dirs, labels := defaultLayout(l.root)
	if manifest != nil {
		if len(manifest.Formats) > 0 {
			formats = normalizeFormats(manifest.Formats)
		}
		manifest.apply(l.root, dirs, labels)
	}

	rank := make(map[string]int, len(formats))
	for i, f := range formats {
		rank[f] = i
	}

	index := make(map[indexKey]string)
	for _, lang := range config.ValidLanguages() {
		dir := dirs[lang]
		entries, err := os.ReadDir(dir)
		if err != nil {
			l.logger.Warn("asset language directory unreadable", "language", lang, "dir", dir, "error", err)
			continue
		}

		best := make(map[string]int)
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			m := clipPattern.FindStringSubmatch(e.Name())
			if m == nil {
				continue
			}
			r, ok := rank[strings.ToLower(m[3])]
			if !ok {
				continue
			}
			clip := m[1] + "_" + m[2]
			if prev, seen := best[clip]; seen && prev <= r {
				continue
			}
			best[clip] = r
			index[indexKey{lang: lang, clip: clip}] = filepath.Join(dir, e.Name())
		}
		l.logger.Debug("scanned asset directory", "language", lang, "dir", dir, "clips", len(best))
	}

	l.mu.Lock()
	l.formats = formats
	l.dirs = dirs
	l.labels = labels
	l.index = index
	l.mu.Unlock()

	return nil
}

// Resolve returns the clip for a boundary-aligned time. minute must be a
// multiple of BucketMinutes.
func (l *Library) Resolve(hour, minute int, lang config.Language) (string, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || minute%BucketMinutes != 0 {
		return "", fmt.Errorf("%w: %02d:%02d", ErrInvalidSlot, hour, minute)
	}
	if !lang.Valid() {
		return "", fmt.Errorf("%w: %q", config.ErrInvalidLanguage, lang)
	}

	clip := ClipName(hour, minute)

	l.mu.RLock()
	path, ok := l.index[indexKey{lang: lang, clip: clip}]
	l.mu.RUnlock()

	if !ok {
		return "", &MissingAssetError{Hour: hour, Minute: minute, Language: lang, Clip: clip}
	}
	return path, nil
}

// Verify lists every clip absent for the given languages (all languages
// if none are given).
func (l *Library) Verify(langs ...config.Language) []Missing {
	if len(langs) == 0 {
		langs = config.ValidLanguages()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	var missing []Missing
	for _, lang := range langs {
		for _, name := range Checklist(config.Interval15, "") {
			if _, ok := l.index[indexKey{lang: lang, clip: name}]; !ok {
				missing = append(missing, Missing{Language: lang, Clip: name, Dir: l.dirs[lang]})
			}
		}
	}
	return missing
}

// Count returns the number of indexed clips for lang.
func (l *Library) Count(lang config.Language) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for k := range l.index {
		if k.lang == lang {
			n++
		}
	}
	return n
}

// Label returns the display label for lang.
func (l *Library) Label(lang config.Language) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if label, ok := l.labels[lang]; ok && label != "" {
		return label
	}
	return lang.DisplayName()
}

// Dirs returns the language directories, sorted.
func (l *Library) Dirs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	dirs := make([]string, 0, len(l.dirs))
	for _, d := range l.dirs {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)
	return dirs
}

// Formats returns the extension preference order in effect.
func (l *Library) Formats() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.formats)
}

func defaultLayout(root string) (map[config.Language]string, map[config.Language]string) {
	dirs := make(map[config.Language]string)
	labels := make(map[config.Language]string)
	for _, lang := range config.ValidLanguages() {
		dirs[lang] = filepath.Join(root, string(lang))
		labels[lang] = lang.DisplayName()
	}
	return dirs, labels
}

func normalizeFormats(formats []string) []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		out = append(out, f)
	}
	return out
}
