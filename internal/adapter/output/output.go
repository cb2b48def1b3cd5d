// Package output provides output formatters for announcement history.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/voiceclock/internal/model"
)

// Formatter formats announcements for output.
type Formatter interface {
	// Format writes formatted announcements to the writer.
	Format(w io.Writer, announcements []model.Announcement) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatPlain FormatType = "plain"
	FormatLine  FormatType = "line"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// FormatTypes lists the accepted --format values.
func FormatTypes() []FormatType {
	return []FormatType{FormatPlain, FormatLine, FormatJSON, FormatYAML}
}

// ParseFormat parses a --format value.
func ParseFormat(s string) (FormatType, error) {
	f := FormatType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range FormatTypes() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q, must be one of: %v", s, FormatTypes())
}

// NewFormatter creates a formatter for the specified format type.
func NewFormatter(format FormatType, opts FormatterOptions) Formatter {
	switch format {
	case FormatJSON:
		return NewJSONFormatter(opts)
	case FormatYAML:
		return NewYAMLFormatter(opts)
	case FormatLine:
		return NewLineFormatter(opts)
	case FormatPlain:
		fallthrough
	default:
		return NewPlainFormatter(opts)
	}
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template  string // Custom template for plain/line format
	ShowIndex bool   // Show 1-based index prefix
	ShowTime  bool   // Show relative time
	ShowPath  bool   // Show the clip path
	Separator string // Field separator for line format
}

// DefaultFormatterOptions returns sensible defaults.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowIndex: false,
		ShowTime:  true,
		ShowPath:  false,
		Separator: " | ",
	}
}
