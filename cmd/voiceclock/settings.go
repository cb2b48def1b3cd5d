package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/store"
	"github.com/jmylchreest/voiceclock/internal/tui"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Open the settings dialog",
	Long: `Open the interactive settings dialog.

The dialog edits the language, interval and mute flag and shows recent
announcements. Changes take effect when saved.

Key bindings:
  ↑/↓, j/k    Move between rows
  ←/→, h/l    Change the selected option
  m           Toggle mute
  enter, s    Save
  a           Announce the current time
  u           Discard unsaved changes
  ?           Show help
  q           Quit`,
	Args: cobra.NoArgs,
	RunE: runSettings,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
}

// daemonBackend edits settings through voiceclockd.
type daemonBackend struct {
	client *dbus.ControlClient
}

func (b daemonBackend) Load(ctx context.Context) (config.Settings, error) {
	return b.client.Settings(ctx)
}

func (b daemonBackend) Save(ctx context.Context, s config.Settings) error {
	cur, err := b.client.Settings(ctx)
	if err != nil {
		return err
	}
	if cur.Language != s.Language {
		if err := b.client.SetLanguage(ctx, s.Language); err != nil {
			return err
		}
	}
	if cur.Interval != s.Interval {
		if err := b.client.SetInterval(ctx, s.Interval); err != nil {
			return err
		}
	}
	if cur.Muted != s.Muted {
		return b.client.SetMuted(ctx, s.Muted)
	}
	return nil
}

func (b daemonBackend) AnnounceNow(ctx context.Context) (*model.Announcement, error) {
	res, err := b.client.AnnounceNow(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Announcement{Slot: res.Slot, Outcome: model.Outcome(res.Outcome), Path: res.Path}, nil
}

func runSettings(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var backend tui.Backend
	if client := connectDaemon(ctx); client != nil {
		backend = daemonBackend{client: client}
	} else {
		s, err := settingsStore()
		if err != nil {
			return err
		}
		logger.Debug("voiceclockd not running, editing settings file", "path", s.Path())
		backend = tui.FileBackend{Store: s}
	}

	opts := tui.RunOptions{Backend: backend}

	// History is read-only here; the daemon owns the file
	if path, err := store.HistoryPath(); err == nil {
		history := store.NewStore(readOnlyHistory{path: path}, 0)
		if err := history.Hydrate(); err != nil {
			logger.Warn("failed to load history", "error", err)
		}
		defer func() { _ = history.Close() }()
		opts.History = history
		opts.HistoryPath = path
	}

	return tui.Run(opts)
}

// readOnlyHistory loads the history file for display without creating or
// modifying it.
type readOnlyHistory struct {
	path string
}

func (p readOnlyHistory) Load() ([]model.Announcement, error) {
	return store.ReadHistory(p.path)
}

func (readOnlyHistory) Append(model.Announcement) error { return nil }

func (readOnlyHistory) Rewrite([]model.Announcement) error { return nil }

func (readOnlyHistory) Clear() error { return nil }

func (readOnlyHistory) Close() error { return nil }
