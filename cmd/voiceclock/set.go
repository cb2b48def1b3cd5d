package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Change announcement settings",
	Long: `Change the announcement language or interval.

Examples:
  voiceclock set language bn
  voiceclock set interval 15
  voiceclock set interval 1h`,
}

var setLanguageCmd = &cobra.Command{
	Use:       "language <en|bn>",
	Short:     "Set the announcement language",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"en", "bn"},
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, err := config.ParseLanguage(args[0])
		if err != nil {
			return err
		}
		return applySetting(
			func(ctx context.Context, c *dbus.ControlClient) error { return c.SetLanguage(ctx, lang) },
			func(s *config.Settings) { s.Language = lang },
		)
	},
}

var setIntervalCmd = &cobra.Command{
	Use:       "interval <15|30|60>",
	Short:     "Set the announcement interval in minutes",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"15", "30", "60"},
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, err := config.ParseInterval(args[0])
		if err != nil {
			return err
		}
		return applySetting(
			func(ctx context.Context, c *dbus.ControlClient) error { return c.SetInterval(ctx, interval) },
			func(s *config.Settings) { s.Interval = interval },
		)
	},
}

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		s, _, err := currentSettings(ctx)
		if err != nil {
			return err
		}
		return printSettings(s)
	},
}

func init() {
	setCmd.AddCommand(setLanguageCmd)
	setCmd.AddCommand(setIntervalCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(getCmd)
}

func applySetting(viaDaemon func(context.Context, *dbus.ControlClient) error, fn func(*config.Settings)) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	s, err := updateSettings(ctx, func(c *dbus.ControlClient) error { return viaDaemon(ctx, c) }, fn)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return printSettings(s)
}
