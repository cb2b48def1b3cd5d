// Package main is the entry point for the voiceclockd announcement daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/voiceclock/internal/announce"
	"github.com/jmylchreest/voiceclock/internal/assets"
	"github.com/jmylchreest/voiceclock/internal/audio"
	"github.com/jmylchreest/voiceclock/internal/clock"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/daemon"
	"github.com/jmylchreest/voiceclock/internal/dbus"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/schedule"
	"github.com/jmylchreest/voiceclock/internal/store"
)

const appName = "voiceclockd"

var (
	// Build-time variables
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to voiceclockd.toml (default: $XDG_CONFIG_HOME/voiceclock/voiceclockd.toml)")
	quiet := flag.Bool("quiet", false, "Log at info level instead of debug")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appName, "version", version)
		os.Exit(0)
	}

	level := slog.LevelDebug
	if *quiet {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, logger); err != nil {
		logger.Error("voiceclockd failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, logger *slog.Logger) error {
	logger.Info("starting voiceclockd", "version", version)

	// Daemon configuration
	configWatcher, err := daemon.NewConfigWatcher(configPath, logger)
	if err != nil {
		return err
	}
	cfg, err := config.LoadDaemonConfigFrom(configWatcher.Path())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// User settings
	settingsPath, err := config.SettingsPath()
	if err != nil {
		return err
	}
	settingsStore, err := config.NewSettingsStore(settingsPath)
	if err != nil {
		return err
	}
	initial, err := settingsStore.Load()
	if err != nil {
		// A broken file must not keep the clock silent
		logger.Warn("failed to load settings, using defaults", "path", settingsPath, "error", err)
		initial = config.DefaultSettings()
	}
	settings := config.NewSnapshot(initial)
	logger.Info("settings loaded", "language", initial.Language, "interval", int(initial.Interval), "muted", initial.Muted)

	// Clip library
	assetsRoot, err := cfg.AssetsPath()
	if err != nil {
		return err
	}
	library := assets.NewLibrary(assetsRoot, cfg.Assets.Formats, logger)
	if err := library.Scan(); err != nil {
		logger.Warn("failed to scan clip library", "root", assetsRoot, "error", err)
	}

	audioManager := audio.NewManager(cfg, logger)
	defer audioManager.Stop()

	// History and runtime state
	var history *store.Store
	if cfg.History.Enabled {
		history, err = openHistory(cfg.History.Length, logger)
		if err != nil {
			logger.Warn("history disabled", "error", err)
		} else {
			defer func() {
				if err := history.Close(); err != nil {
					logger.Warn("error closing history", "error", err)
				}
			}()
		}
	}

	statePath, err := store.StateFilePath()
	if err != nil {
		return err
	}
	state, err := store.NewStateRecorder(statePath, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	defer func() {
		if err := state.Stopped(); err != nil {
			logger.Warn("failed to update state file", "error", err)
		}
	}()

	// Desktop toasts
	var sender daemon.ToastSender
	if conn, err := godbus.SessionBus(); err != nil {
		logger.Warn("no session bus, toasts disabled", "error", err)
	} else {
		sender = dbus.NewNotificationClient(conn, logger)
	}
	notifier := daemon.NewInternalNotifier(sender, logger)
	notifier.ApplyConfig(cfg.Notifications)

	// Announcement pipeline
	var controlServer *dbus.ControlServer
	opts := []announce.Option{
		announce.WithLogger(logger),
		announce.WithNotifier(notifier),
		announce.WithLast(lastBoundary(history, state.State())),
	}
	if history != nil {
		opts = append(opts, announce.WithRecorder(history))
	}
	opts = append(opts, announce.WithRecorder(state))

	// The control server is created after the controller it serves
	opts = append(opts, announce.WithRecorder(announce.RecorderFunc(func(a *model.Announcement) error {
		if controlServer == nil {
			return nil
		}
		return controlServer.Record(a)
	})))

	dispatcher := announce.NewDispatcher(library, audioManager, opts...)
	sampler := clock.NewSampler(clock.SystemClock{}, cfg.Scheduler.PollInterval.Duration(), logger)
	scheduler := announce.NewScheduler(sampler, clock.SystemClock{}, settings, dispatcher, logger)

	controller := daemon.NewController(daemon.Components{
		Settings:      settings,
		SettingsStore: settingsStore,
		Announcer:     scheduler,
		Assets:        library,
		Playback:      audioManager,
		History:       history,
		State:         state,
		Notifier:      notifier,
	}, version, logger)

	// Control service
	controlServer = dbus.NewControlServer(controller, logger)
	controlServer.SetServerInfo(dbus.ServerInfo{Name: appName, Version: version})
	if err := controlServer.Start(); err != nil {
		logger.Warn("control service unavailable", "error", err)
	} else {
		defer func() { _ = controlServer.Stop() }()
		controller.SetExternalChangeCallback(func(s config.Settings) {
			if err := controlServer.EmitSettingsChanged(s); err != nil {
				logger.Debug("SettingsChanged not emitted", "error", err)
			}
		})
	}

	// Settings edited on disk by the CLI or TUI
	settingsWatcher := daemon.NewSettingsWatcher(settingsStore, logger)
	settingsWatcher.SetReloadCallback(func(s config.Settings) {
		if _, err := controller.ApplySettings(s); err != nil {
			controller.SettingsError(err)
		}
	})
	settingsWatcher.SetErrorCallback(controller.SettingsError)
	if err := settingsWatcher.Start(ctx); err != nil {
		logger.Warn("failed to watch settings file", "error", err)
	}
	defer settingsWatcher.Stop()

	// Daemon config hot reload
	current := cfg
	configWatcher.SetReloadCallback(func(next *config.DaemonConfig) {
		applyConfig(current, next, sampler, audioManager, notifier, history, logger)
		current = next
		notifier.NotifyConfigReloaded()
	})
	configWatcher.SetErrorCallback(notifier.NotifyConfigError)
	if err := configWatcher.Start(ctx, cfg); err != nil {
		logger.Warn("failed to watch config file", "error", err)
	}
	defer configWatcher.Stop()

	// Clip library changes
	if cfg.Assets.Watch {
		assetWatcher, err := assets.NewWatcher(library, func() {
			audioManager.Reload()
			reportMissing(library, settings.Load().Language, notifier, logger)
		})
		if err == nil {
			err = assetWatcher.Start()
		}
		if err != nil {
			logger.Warn("failed to watch clip library", "root", assetsRoot, "error", err)
		} else {
			defer func() { _ = assetWatcher.Stop() }()
		}
	}

	// Resume from suspend: sample now rather than at the next tick
	sleepMonitor := dbus.NewSleepMonitor(logger)
	sleepMonitor.SetResumeHandler(sampler.Wake)
	if err := sleepMonitor.Start(); err != nil {
		logger.Warn("failed to monitor system sleep", "error", err)
	} else {
		defer func() { _ = sleepMonitor.Stop() }()
	}

	reportMissing(library, initial.Language, notifier, logger)
	notifier.NotifyStartup(version, *initial)

	logger.Info("voiceclockd ready",
		"assets", assetsRoot,
		"cadence", sampler.Cadence(),
		"history", history != nil)

	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("voiceclockd stopped")
	return nil
}

// openHistory opens the history file and loads its contents.
func openHistory(limit int, logger *slog.Logger) (*store.Store, error) {
	historyPath, err := store.HistoryPath()
	if err != nil {
		return nil, err
	}

	persistence, err := store.NewJSONLPersistence(historyPath)
	if err != nil {
		return nil, err
	}

	history := store.NewStore(persistence, limit)
	if err := history.Hydrate(); err != nil {
		logger.Warn("failed to hydrate history", "error", err)
	}
	logger.Info("history initialized", "path", historyPath, "count", history.Count())
	return history, nil
}

// lastBoundary restores the most recent scheduled boundary so a restart
// within the same minute does not repeat it. Forced announcements never
// count.
func lastBoundary(history *store.Store, state store.RuntimeState) schedule.Last {
	var candidates []model.Announcement
	if history != nil {
		candidates = history.All()
	}
	if state.LastAnnouncement != nil {
		candidates = append(candidates, *state.LastAnnouncement)
	}

	var last schedule.Last
	for _, a := range candidates {
		if a.Outcome == model.OutcomeForced || a.Timestamp <= 0 {
			continue
		}
		at := time.Unix(a.Timestamp, 0)
		if at.After(last.At) {
			last = schedule.Last{Slot: schedule.Slot{Hour: a.Hour, Minute: a.Minute}, At: at}
		}
	}
	return last
}

// applyConfig pushes a reloaded daemon config into the running components.
func applyConfig(prev, next *config.DaemonConfig, sampler *clock.Sampler, audioManager *audio.Manager,
	notifier *daemon.InternalNotifier, history *store.Store, logger *slog.Logger) {
	sampler.SetCadence(next.Scheduler.PollInterval.Duration())
	audioManager.UpdateConfig(next)
	notifier.ApplyConfig(next.Notifications)
	if history != nil {
		history.SetLimit(next.History.Length)
	}

	if prev.Assets.Dir != next.Assets.Dir || !slices.Equal(prev.Assets.Formats, next.Assets.Formats) ||
		prev.Assets.Watch != next.Assets.Watch || prev.History.Enabled != next.History.Enabled {
		logger.Warn("asset and history changes take effect after restart")
	}
}

// reportMissing logs and toasts clips missing for lang.
func reportMissing(library *assets.Library, lang config.Language, notifier *daemon.InternalNotifier, logger *slog.Logger) {
	missing := library.Verify(lang)
	if len(missing) == 0 {
		return
	}
	logger.Warn("clip library incomplete", "language", lang, "missing", len(missing), "root", library.Root())
	notifier.NotifyAssetsIncomplete(lang, len(missing))
}
