// Package main provides the CLI entrypoint for voiceclock.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/adapter/output"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
)

// Build-time variables (set via ldflags)
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Global configuration and state
var (
	globalOpts struct {
		verbose      bool
		format       string
		settingsFile string
		configPath   string
	}
	logger *slog.Logger
	format output.FormatType
)

// requestTimeout bounds calls to voiceclockd.
const requestTimeout = 10 * time.Second

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "voiceclock",
	Short: "Spoken time announcements for Linux desktops",
	Long: `voiceclock controls voiceclockd, the daemon that speaks the time at
every quarter, half or full hour from recorded clips.

Settings changes go to the running daemon over D-Bus. When the daemon is not
running they are written to the settings file, which voiceclockd reads on
start and watches while running.

Running voiceclock without a subcommand opens the settings dialog.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogger()

		var err error
		format, err = output.ParseFormat(globalOpts.format)
		return err
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSettings(cmd, args)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&globalOpts.verbose, "verbose", "v", false,
		"Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&globalOpts.format, "format", "f", string(output.FormatPlain),
		"Output format (plain, line, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.settingsFile, "settings-file", "",
		"Path to settings file (default: ~/.config/voiceclock/settings.toml)")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "",
		"Path to daemon config file (default: ~/.config/voiceclock/voiceclockd.toml)")
}

// setupLogger configures the global slog logger.
func setupLogger() {
	level := slog.LevelWarn
	if globalOpts.verbose {
		level = slog.LevelDebug
	}

	// Log to stderr so stdout is clean for output
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// settingsStore opens the settings file.
func settingsStore() (*config.SettingsStore, error) {
	path := globalOpts.settingsFile
	if path == "" {
		var err error
		path, err = config.SettingsPath()
		if err != nil {
			return nil, err
		}
	}
	return config.NewSettingsStore(path)
}

// daemonConfig loads the daemon config the CLI shares with voiceclockd.
func daemonConfig() (*config.DaemonConfig, error) {
	if globalOpts.configPath != "" {
		return config.LoadDaemonConfigFrom(globalOpts.configPath)
	}
	return config.LoadDaemonConfig()
}

// connectDaemon returns a control client, or nil if voiceclockd is not
// running. A custom settings file always bypasses the daemon.
func connectDaemon(ctx context.Context) *dbus.ControlClient {
	if globalOpts.settingsFile != "" {
		return nil
	}

	client, err := dbus.ConnectControl(ctx)
	if err != nil {
		if !errors.Is(err, dbus.ErrDaemonNotRunning) {
			logger.Debug("session bus unavailable", "error", err)
		}
		return nil
	}
	return client
}

// updateSettings applies fn through the daemon if it is running, or to
// the settings file otherwise, and returns the resulting settings.
func updateSettings(ctx context.Context, viaDaemon func(*dbus.ControlClient) error, fn func(*config.Settings)) (config.Settings, error) {
	if client := connectDaemon(ctx); client != nil {
		if err := viaDaemon(client); err != nil {
			return config.Settings{}, err
		}
		return client.Settings(ctx)
	}

	store, err := settingsStore()
	if err != nil {
		return config.Settings{}, err
	}
	s, err := store.Load()
	if err != nil {
		return config.Settings{}, err
	}
	fn(s)
	if err := store.Save(s); err != nil {
		return config.Settings{}, err
	}
	logger.Debug("settings written", "path", store.Path())
	return *s, nil
}

// currentSettings reads the settings from the daemon or the settings file.
func currentSettings(ctx context.Context) (config.Settings, bool, error) {
	if client := connectDaemon(ctx); client != nil {
		s, err := client.Settings(ctx)
		return s, true, err
	}

	store, err := settingsStore()
	if err != nil {
		return config.Settings{}, false, err
	}
	s, err := store.Load()
	if err != nil {
		return config.Settings{}, false, err
	}
	return *s, false, nil
}

// printSettings writes settings in the selected format.
func printSettings(s config.Settings) error {
	if handled, err := output.Write(os.Stdout, format, settingsView(s)); handled {
		return err
	}
	fmt.Printf("Language: %s\n", s.Language.DisplayName())
	fmt.Printf("Interval: %s\n", s.Interval)
	fmt.Printf("Muted:    %t\n", s.Muted)
	return nil
}

type settingsOutput struct {
	Language string `json:"language" yaml:"language"`
	Interval int    `json:"interval" yaml:"interval"`
	Muted    bool   `json:"muted" yaml:"muted"`
}

func settingsView(s config.Settings) settingsOutput {
	return settingsOutput{Language: string(s.Language), Interval: s.Interval.Minutes(), Muted: s.Muted}
}
