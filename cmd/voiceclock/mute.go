package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
)

var muteOpts struct {
	quiet bool // Suppress output, return exit code only
}

// muteCmd represents the mute command group.
var muteCmd = &cobra.Command{
	Use:   "mute",
	Short: "Manage mute",
	Long: `Mute or unmute announcements.

While muted, boundaries still pass (and are recorded in history) but no
clip is played. Unmuting never replays a boundary that passed while muted.

Use 'voiceclock mute status' to check the current state.
Use 'voiceclock mute on' to mute.
Use 'voiceclock mute off' to unmute.
Use 'voiceclock mute toggle' to toggle.`,
	RunE: muteStatusRun,
}

var muteOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Mute announcements",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMuted(func(ctx context.Context, c *dbus.ControlClient) error { return c.SetMuted(ctx, true) },
			func(s *config.Settings) { s.Muted = true })
	},
}

var muteOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Unmute announcements",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMuted(func(ctx context.Context, c *dbus.ControlClient) error { return c.SetMuted(ctx, false) },
			func(s *config.Settings) { s.Muted = false })
	},
}

var muteToggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Toggle mute",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMuted(func(ctx context.Context, c *dbus.ControlClient) error {
			_, err := c.ToggleMute(ctx)
			return err
		}, func(s *config.Settings) { s.Muted = !s.Muted })
	},
}

var muteStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether announcements are muted",
	RunE:  muteStatusRun,
}

func init() {
	muteCmd.AddCommand(muteOnCmd)
	muteCmd.AddCommand(muteOffCmd)
	muteCmd.AddCommand(muteToggleCmd)
	muteCmd.AddCommand(muteStatusCmd)

	for _, cmd := range []*cobra.Command{muteCmd, muteOnCmd, muteOffCmd, muteToggleCmd, muteStatusCmd} {
		cmd.Flags().BoolVarP(&muteOpts.quiet, "quiet", "q", false,
			"Suppress output, return exit code only (0=unmuted, 1=muted)")
	}

	rootCmd.AddCommand(muteCmd)
}

func setMuted(viaDaemon func(context.Context, *dbus.ControlClient) error, fn func(*config.Settings)) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	s, err := updateSettings(ctx, func(c *dbus.ControlClient) error { return viaDaemon(ctx, c) }, fn)
	if err != nil {
		if !muteOpts.quiet {
			fmt.Fprintf(os.Stderr, "Failed to update mute: %v\n", err)
		}
		return err
	}
	reportMuted(s.Muted)
	return nil
}

func muteStatusRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	s, _, err := currentSettings(ctx)
	if err != nil {
		if !muteOpts.quiet {
			fmt.Fprintf(os.Stderr, "Failed to read settings: %v\n", err)
		}
		return err
	}
	reportMuted(s.Muted)
	return nil
}

// reportMuted prints the state and exits 1 when muted so scripts can
// branch on it.
func reportMuted(muted bool) {
	if !muteOpts.quiet {
		if muted {
			fmt.Println("Announcements: muted")
		} else {
			fmt.Println("Announcements: on")
		}
	}
	if muted {
		os.Exit(1)
	}
}
