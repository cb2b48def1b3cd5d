package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/adapter/output"
	"github.com/jmylchreest/voiceclock/internal/dbus"
)

var announceCmd = &cobra.Command{
	Use:   "announce",
	Short: "Speak the current time now",
	Long: `Ask voiceclockd to play the clip for the current time immediately.

The clip for the most recent quarter hour is played regardless of the
interval or mute setting. It does not count as the scheduled announcement,
so the next boundary still plays as usual.`,
	Args: cobra.NoArgs,
	RunE: runAnnounce,
}

func init() {
	rootCmd.AddCommand(announceCmd)
}

func runAnnounce(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	client := connectDaemon(ctx)
	if client == nil {
		return errors.New("voiceclockd is not running")
	}

	res, err := client.AnnounceNow(ctx)
	if handled, werr := output.Write(os.Stdout, format, announceView(res, err)); handled {
		if werr != nil {
			return werr
		}
		return err
	}
	if err != nil {
		if res.Slot != "" {
			return fmt.Errorf("announcing %s: %w", res.Slot, err)
		}
		return err
	}

	fmt.Printf("Announced %s (%s)\n", res.Slot, res.Path)
	return nil
}

type announceOutput struct {
	Slot    string `json:"slot" yaml:"slot"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func announceView(res dbus.AnnounceResult, err error) announceOutput {
	out := announceOutput{Slot: res.Slot, Outcome: res.Outcome, Path: res.Path}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
