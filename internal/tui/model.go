// Package tui provides the BubbleTea settings dialog.
package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/store"
)

// ErrNoDaemon is returned by backends that cannot announce.
var ErrNoDaemon = errors.New("voiceclockd is not running")

// Backend loads and applies settings for the dialog.
type Backend interface {
	Load(ctx context.Context) (config.Settings, error)
	Save(ctx context.Context, s config.Settings) error
	AnnounceNow(ctx context.Context) (*model.Announcement, error)
}

// FileBackend edits the settings file directly. voiceclockd picks the
// change up from disk.
type FileBackend struct {
	Store *config.SettingsStore
}

// Load reads the settings file.
func (b FileBackend) Load(context.Context) (config.Settings, error) {
	s, err := b.Store.Load()
	if err != nil {
		return config.Settings{}, err
	}
	return *s, nil
}

// Save writes the settings file.
func (b FileBackend) Save(_ context.Context, s config.Settings) error {
	return b.Store.Save(&s)
}

// AnnounceNow needs the daemon.
func (b FileBackend) AnnounceNow(context.Context) (*model.Announcement, error) {
	return nil, ErrNoDaemon
}

// field is a focusable row in the dialog.
type field int

const (
	fieldLanguage field = iota
	fieldInterval
	fieldMuted
	fieldCount
)

// backendTimeout bounds each backend call.
const backendTimeout = 5 * time.Second

// historyLimit is the number of recent announcements shown.
const historyLimit = 50

// Model is the settings dialog model.
type Model struct {
	backend Backend
	store   *store.Store
	labels  func(config.Language) string

	// Settings as edited and as last loaded or saved
	settings config.Settings
	saved    config.Settings
	loaded   bool

	focus field

	// Components
	history  viewport.Model
	help     help.Model
	showHelp bool

	announcements []model.Announcement
	width         int
	height        int
	ready         bool

	// Key bindings
	keys KeyMap

	// Status message
	statusMsg string
	statusErr bool

	// Quitting with unsaved changes needs a second press
	confirmQuit bool

	// Refresh channel subscription
	refreshCh <-chan store.ChangeEvent
}

// Options configures a Model.
type Options struct {
	Backend Backend
	// History is shown below the settings when set.
	History *store.Store
	// LanguageLabel overrides the displayed language names.
	LanguageLabel func(config.Language) string
}

// New creates a new dialog model.
func New(opts Options) Model {
	labels := opts.LanguageLabel
	if labels == nil {
		labels = config.Language.DisplayName
	}

	m := Model{
		backend:  opts.Backend,
		store:    opts.History,
		labels:   labels,
		settings: *config.DefaultSettings(),
		saved:    *config.DefaultSettings(),
		history:  viewport.New(0, 0),
		help:     help.New(),
		keys:     DefaultKeyMap(),
	}

	if opts.History != nil {
		m.refreshCh = opts.History.Subscribe()
	}

	return m
}

// Init loads the settings and history.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadSettings,
		m.loadHistory,
		m.watchForChanges,
	)
}

type settingsLoadedMsg struct {
	settings config.Settings
	err      error
}

type settingsSavedMsg struct {
	settings config.Settings
	err      error
}

type announcedMsg struct {
	announcement *model.Announcement
	err          error
}

type loadHistoryMsg struct{}

type refreshMsg struct{}

func (m Model) loadSettings() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	s, err := m.backend.Load(ctx)
	return settingsLoadedMsg{settings: s, err: err}
}

func (m Model) loadHistory() tea.Msg {
	return loadHistoryMsg{}
}

// watchForChanges waits for a store change.
func (m Model) watchForChanges() tea.Msg {
	if m.refreshCh == nil {
		return nil
	}
	if _, ok := <-m.refreshCh; !ok {
		return nil
	}
	return refreshMsg{}
}

func (m Model) saveSettings(s config.Settings) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
		defer cancel()
		err := m.backend.Save(ctx, s)
		return settingsSavedMsg{settings: s, err: err}
	}
}

func (m Model) announceNow() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	a, err := m.backend.AnnounceNow(ctx)
	return announcedMsg{announcement: a, err: err}
}

// Settings returns the settings as currently edited.
func (m Model) Settings() config.Settings {
	return m.settings
}

// Dirty reports whether there are unsaved changes.
func (m Model) Dirty() bool {
	return m.settings != m.saved
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.help.Width = msg.Width
		m.history.Width = msg.Width
		m.history.Height = max(3, msg.Height-formHeight)
		m.history.SetContent(m.renderHistory())
		return m, nil

	case settingsLoadedMsg:
		if msg.err != nil {
			m.setStatus("Failed to load settings: "+msg.err.Error(), true)
			return m, nil
		}
		m.settings = msg.settings
		m.saved = msg.settings
		m.loaded = true
		return m, nil

	case settingsSavedMsg:
		if msg.err != nil {
			m.setStatus("Failed to save: "+msg.err.Error(), true)
			return m, nil
		}
		m.saved = msg.settings
		m.confirmQuit = false
		m.setStatus("Settings saved successfully!", false)
		return m, nil

	case announcedMsg:
		if msg.err != nil {
			m.setStatus("Announce failed: "+msg.err.Error(), true)
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Announced %s (%s)", msg.announcement.Slot, msg.announcement.Outcome), false)
		return m, nil

	case loadHistoryMsg:
		m.announcements = m.fetchHistory()
		m.history.SetContent(m.renderHistory())
		return m, nil

	case refreshMsg:
		m.announcements = m.fetchHistory()
		m.history.SetContent(m.renderHistory())
		return m, m.watchForChanges
	}

	return m, nil
}

func (m *Model) setStatus(msg string, isErr bool) {
	m.statusMsg = msg
	m.statusErr = isErr
}

// fetchHistory returns the most recent announcements.
func (m Model) fetchHistory() []model.Announcement {
	if m.store == nil {
		return nil
	}
	return m.store.Filter(store.FilterOptions{Limit: historyLimit})
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.Dirty() && !m.confirmQuit && msg.String() != "ctrl+c" {
			m.confirmQuit = true
			m.setStatus("Unsaved changes. Press q again to discard, enter to save.", true)
			return m, nil
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.focus = (m.focus + fieldCount - 1) % fieldCount

	case key.Matches(msg, m.keys.Down):
		m.focus = (m.focus + 1) % fieldCount

	case key.Matches(msg, m.keys.Prev):
		m.cycle(-1)

	case key.Matches(msg, m.keys.Next):
		m.cycle(1)

	case key.Matches(msg, m.keys.ToggleMute):
		m.settings.Muted = !m.settings.Muted

	case key.Matches(msg, m.keys.Revert):
		m.settings = m.saved
		m.setStatus("Changes discarded", false)
		return m, nil

	case key.Matches(msg, m.keys.Save):
		if !m.Dirty() {
			m.setStatus("No changes to save", false)
			return m, nil
		}
		if err := m.settings.Validate(); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		m.setStatus("Saving...", false)
		return m, m.saveSettings(m.settings)

	case key.Matches(msg, m.keys.Announce):
		m.setStatus("Announcing...", false)
		return m, m.announceNow

	case key.Matches(msg, m.keys.ScrollUp):
		m.history.SetYOffset(m.history.YOffset - m.history.Height)
		return m, nil

	case key.Matches(msg, m.keys.ScrollDown):
		m.history.SetYOffset(m.history.YOffset + m.history.Height)
		return m, nil

	default:
		return m, nil
	}

	m.confirmQuit = false
	m.statusMsg = ""
	return m, nil
}

// cycle moves the focused field to its previous or next option.
func (m *Model) cycle(dir int) {
	switch m.focus {
	case fieldLanguage:
		m.settings.Language = step(config.ValidLanguages(), m.settings.Language, dir)
	case fieldInterval:
		m.settings.Interval = step(config.ValidIntervals(), m.settings.Interval, dir)
	case fieldMuted:
		m.settings.Muted = !m.settings.Muted
	}
}

// step returns the option dir places away from cur, wrapping around.
func step[T comparable](options []T, cur T, dir int) T {
	i := slices.Index(options, cur)
	if i < 0 {
		return options[0]
	}
	n := len(options)
	return options[((i+dir)%n+n)%n]
}

// RunOptions configures the TUI.
type RunOptions struct {
	Backend       Backend
	History       *store.Store
	HistoryPath   string // Path to watch for changes (empty = no watching)
	LanguageLabel func(config.Language) string
}

// Run starts the settings dialog.
func Run(opts RunOptions) error {
	var watcher *store.FileWatcher
	if opts.History != nil && opts.HistoryPath != "" {
		var err error
		watcher, err = store.NewFileWatcher(opts.History, opts.HistoryPath, nil)
		if err == nil {
			err = watcher.Start()
		}
		if err != nil {
			// History just won't update live
			watcher = nil
		}
	}

	m := New(Options{
		Backend:       opts.Backend,
		History:       opts.History,
		LanguageLabel: opts.LanguageLabel,
	})
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err := p.Run()

	if watcher != nil {
		_ = watcher.Stop()
	}

	return err
}
