package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
)

var importOpts struct {
	dryRun bool
}

var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy <settings.json>",
	Short: "Import settings from an older settings.json",
	Long: `Import the language, interval and mute flag from a settings.json
written by earlier releases. Keys missing from the file get their defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: runImportLegacy,
}

func init() {
	importLegacyCmd.Flags().BoolVar(&importOpts.dryRun, "dry-run", false,
		"Print the imported settings without applying them")
	rootCmd.AddCommand(importLegacyCmd)
}

func runImportLegacy(cmd *cobra.Command, args []string) error {
	imported, err := config.ImportLegacy(args[0])
	if err != nil {
		return err
	}

	if importOpts.dryRun {
		return printSettings(*imported)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	s, err := updateSettings(ctx, func(c *dbus.ControlClient) error {
		if err := c.SetLanguage(ctx, imported.Language); err != nil {
			return err
		}
		if err := c.SetInterval(ctx, imported.Interval); err != nil {
			return err
		}
		return c.SetMuted(ctx, imported.Muted)
	}, func(s *config.Settings) {
		*s = *imported
	})
	if err != nil {
		return fmt.Errorf("failed to apply imported settings: %w", err)
	}

	logger.Info("legacy settings imported", "from", args[0])
	return printSettings(s)
}
