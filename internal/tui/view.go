package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
)

// formHeight is the number of lines above the history panel.
const formHeight = 12

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Width(12).
			Foreground(lipgloss.Color("8"))

	focusedLabelStyle = labelStyle.
				Foreground(lipgloss.Color("12")).
				Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(lipgloss.Color("8"))
)

// View renders the dialog.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.showHelp {
		return m.viewHelp()
	}

	var b strings.Builder

	title := "Voice Clock Settings"
	if m.Dirty() {
		title += " *"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	languages := make([]string, 0, len(config.ValidLanguages()))
	for _, l := range config.ValidLanguages() {
		languages = append(languages, renderOption(m.labels(l), l == m.settings.Language))
	}
	b.WriteString(m.renderRow(fieldLanguage, "Language", strings.Join(languages, "  ")))

	intervals := make([]string, 0, len(config.ValidIntervals()))
	for _, i := range config.ValidIntervals() {
		intervals = append(intervals, renderOption(i.String(), i == m.settings.Interval))
	}
	b.WriteString(m.renderRow(fieldInterval, "Interval", strings.Join(intervals, "  ")))

	muted := "[ ] announcing"
	if m.settings.Muted {
		muted = "[x] muted"
	}
	b.WriteString(m.renderRow(fieldMuted, "Mute", muted))

	b.WriteString("\n")
	switch {
	case m.statusMsg != "" && m.statusErr:
		b.WriteString(errorStyle.Render(m.statusMsg))
	case m.statusMsg != "":
		b.WriteString(optionStyle.Render(m.statusMsg))
	case !m.loaded:
		b.WriteString(dimStyle.Render("Loading settings..."))
	}
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Width(max(0, m.width)).Render("Recent announcements") + "\n")
	b.WriteString(m.history.View() + "\n")

	b.WriteString(m.help.View(m.keys))

	return b.String()
}

func (m Model) renderRow(f field, label, value string) string {
	marker := "  "
	style := labelStyle
	if m.focus == f {
		marker = "> "
		style = focusedLabelStyle
	}
	return marker + style.Render(label) + value + "\n"
}

func renderOption(label string, selected bool) string {
	if selected {
		return selectedStyle.Render("(•) " + label)
	}
	return optionStyle.Render("( ) " + label)
}

// renderHistory renders the recent announcements for the viewport.
func (m Model) renderHistory() string {
	if m.store == nil {
		return dimStyle.Render("History is not available.")
	}
	if len(m.announcements) == 0 {
		return dimStyle.Render("Nothing announced yet.")
	}

	lines := make([]string, 0, len(m.announcements))
	for i := range m.announcements {
		lines = append(lines, renderAnnouncement(&m.announcements[i]))
	}
	return strings.Join(lines, "\n")
}

func renderAnnouncement(a *model.Announcement) string {
	outcome := fmt.Sprintf("%-7s", a.Outcome)
	switch a.Outcome {
	case model.OutcomeMissing, model.OutcomeFailed:
		outcome = errorStyle.Render(outcome)
	case model.OutcomeMuted:
		outcome = dimStyle.Render(outcome)
	default:
		outcome = selectedStyle.Render(outcome)
	}

	line := fmt.Sprintf("%s  %s  %-2s  %s", a.Slot, outcome, a.Language, dimStyle.Render(a.RelativeTime()))
	if a.Error != "" {
		line += "  " + errorStyle.Render(a.Error)
	}
	return line
}

func (m Model) viewHelp() string {
	h := m.help
	h.ShowAll = true

	s := titleStyle.Render("Keyboard Shortcuts") + "\n\n"
	s += h.View(m.keys) + "\n\n"
	s += dimStyle.Render("Settings are written to settings.toml; voiceclockd applies them immediately.") + "\n\n"
	s += dimStyle.Render("Press any key to return")
	return s
}
