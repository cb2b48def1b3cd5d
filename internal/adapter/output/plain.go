package output

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/voiceclock/internal/model"
)

// PlainFormatter formats announcements as plain text, one block each.
type PlainFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewPlainFormatter creates a new plain text formatter.
func NewPlainFormatter(opts FormatterOptions) *PlainFormatter {
	return &PlainFormatter{opts: opts, template: parseTemplate("plain", opts.Template)}
}

// Format writes announcements as plain text.
func (f *PlainFormatter) Format(w io.Writer, announcements []model.Announcement) error {
	for i := range announcements {
		if err := f.formatAnnouncement(w, i+1, &announcements[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *PlainFormatter) formatAnnouncement(w io.Writer, index int, a *model.Announcement) error {
	if f.template != nil {
		if err := f.template.Execute(w, newTemplateData(index, a)); err != nil {
			return err
		}
		_, err := io.WriteString(w, "\n")
		return err
	}

	var sb strings.Builder

	if f.opts.ShowIndex {
		sb.WriteString(fmt.Sprintf("[%d] ", index))
	}

	sb.WriteString(fmt.Sprintf("%s %-7s %s", a.Slot, a.Outcome, a.Language))

	if f.opts.ShowTime {
		sb.WriteString(fmt.Sprintf(" (%s)", relativeTime(a.Timestamp)))
	}

	sb.WriteString("\n")

	if f.opts.ShowPath && a.Path != "" {
		sb.WriteString("    " + a.Path + "\n")
	}
	if a.Error != "" {
		sb.WriteString("    error: " + a.Error + "\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// LineFormatter writes one announcement per line with separated fields,
// for menus and status bars.
type LineFormatter struct {
	opts     FormatterOptions
	template *template.Template
}

// NewLineFormatter creates a new line formatter.
func NewLineFormatter(opts FormatterOptions) *LineFormatter {
	return &LineFormatter{opts: opts, template: parseTemplate("line", opts.Template)}
}

// Format writes announcements one per line.
func (f *LineFormatter) Format(w io.Writer, announcements []model.Announcement) error {
	for i := range announcements {
		if _, err := fmt.Fprintln(w, f.formatLine(i+1, &announcements[i])); err != nil {
			return err
		}
	}
	return nil
}

func (f *LineFormatter) formatLine(index int, a *model.Announcement) string {
	if f.template != nil {
		var buf strings.Builder
		if err := f.template.Execute(&buf, newTemplateData(index, a)); err == nil {
			return strings.ReplaceAll(buf.String(), "\n", " ")
		}
	}

	sep := f.opts.Separator
	if sep == "" {
		sep = " | "
	}

	var parts []string
	if f.opts.ShowIndex {
		parts = append(parts, fmt.Sprintf("%d", index))
	}
	if f.opts.ShowTime {
		parts = append(parts, relativeTime(a.Timestamp))
	}
	parts = append(parts, a.Slot, string(a.Outcome), a.Language)
	if f.opts.ShowPath && a.Path != "" {
		parts = append(parts, a.Path)
	}

	return strings.Join(parts, sep)
}

// templateData provides data for custom templates.
type templateData struct {
	Index        int
	Announcement *model.Announcement
	RelativeTime string
}

func newTemplateData(index int, a *model.Announcement) templateData {
	return templateData{
		Index:        index,
		Announcement: a,
		RelativeTime: relativeTime(a.Timestamp),
	}
}

// parseTemplate returns nil for an empty or unparsable template, falling
// back to the default layout.
func parseTemplate(name, text string) *template.Template {
	if text == "" {
		return nil
	}
	tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(text)
	if err != nil {
		return nil
	}
	return tmpl
}

// templateFuncs returns template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"reltime": relativeTime,
		"upper":   strings.ToUpper,
		"outcomeIcon": func(o model.Outcome) string {
			switch o {
			case model.OutcomePlayed, model.OutcomeForced:
				return "♪"
			case model.OutcomeMuted:
				return "-"
			default:
				return "!"
			}
		},
	}
}

// relativeTime returns a human-readable relative time string.
func relativeTime(timestamp int64) string {
	if timestamp == 0 {
		return "unknown"
	}
	return humanize.Time(time.Unix(timestamp, 0))
}

// FormatField outputs a specific field from an announcement.
func FormatField(a *model.Announcement, field string) string {
	switch strings.ToLower(field) {
	case "id":
		return a.ID
	case "slot", "time":
		return a.Slot
	case "language", "lang":
		return a.Language
	case "outcome":
		return string(a.Outcome)
	case "path", "clip":
		return a.Path
	case "error":
		return a.Error
	default:
		return a.Slot
	}
}
