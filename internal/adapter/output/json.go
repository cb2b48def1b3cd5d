package output

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/voiceclock/internal/model"
)

// JSONFormatter formats announcements as JSON.
type JSONFormatter struct {
	opts FormatterOptions
}

// NewJSONFormatter creates a new JSON formatter.
func NewJSONFormatter(opts FormatterOptions) *JSONFormatter {
	return &JSONFormatter{opts: opts}
}

// Format writes announcements as a JSON array.
func (f *JSONFormatter) Format(w io.Writer, announcements []model.Announcement) error {
	if announcements == nil {
		announcements = []model.Announcement{}
	}
	return WriteJSON(w, announcements)
}

// YAMLFormatter formats announcements as a YAML sequence.
type YAMLFormatter struct {
	opts FormatterOptions
}

// NewYAMLFormatter creates a new YAML formatter.
func NewYAMLFormatter(opts FormatterOptions) *YAMLFormatter {
	return &YAMLFormatter{opts: opts}
}

// Format writes announcements as YAML.
func (f *YAMLFormatter) Format(w io.Writer, announcements []model.Announcement) error {
	if announcements == nil {
		announcements = []model.Announcement{}
	}
	return WriteYAML(w, announcements)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// WriteYAML writes v as YAML.
func WriteYAML(w io.Writer, v any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

// Write encodes v as JSON or YAML. Other formats return false so the
// caller can render text itself.
func Write(w io.Writer, format FormatType, v any) (bool, error) {
	switch format {
	case FormatJSON:
		return true, WriteJSON(w, v)
	case FormatYAML:
		return true, WriteYAML(w, v)
	default:
		return false, nil
	}
}
