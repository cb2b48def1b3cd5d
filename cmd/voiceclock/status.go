package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/adapter/output"
	"github.com/jmylchreest/voiceclock/internal/assets"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/dbus"
	"github.com/jmylchreest/voiceclock/internal/schedule"
	"github.com/jmylchreest/voiceclock/internal/store"
)

var statusOpts struct {
	waybar bool
}

// WaybarStatus represents the Waybar custom module JSON format.
type WaybarStatus struct {
	Text    string `json:"text"`
	Alt     string `json:"alt,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
	Class   string `json:"class,omitempty"`
}

// statusReport is the status shown by the CLI.
type statusReport struct {
	Running     bool `json:"running" yaml:"running"`
	dbus.Status `yaml:",inline"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and announcement status",
	Long: `Show whether voiceclockd is running, the settings in effect, the last
and next announcement, and how many clips are missing.

When voiceclockd is not running the status is read from its state file.

With --waybar the output is a Waybar custom module:

  "custom/voiceclock": {
    "exec": "voiceclock status --waybar",
    "interval": 30,
    "return-type": "json",
    "on-click": "voiceclock mute toggle -q",
    "on-click-right": "voiceclock settings"
  }`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusOpts.waybar, "waybar", false,
		"Output Waybar-compatible JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	report, err := collectStatus(ctx)
	if err != nil {
		return err
	}

	if statusOpts.waybar {
		return json.NewEncoder(os.Stdout).Encode(waybarStatus(report, time.Now()))
	}
	if handled, err := output.Write(os.Stdout, format, report); handled {
		return err
	}
	printStatus(report)
	return nil
}

// collectStatus asks the daemon, falling back to the files it writes.
func collectStatus(ctx context.Context) (statusReport, error) {
	if client := connectDaemon(ctx); client != nil {
		st, err := client.Status(ctx)
		if err != nil {
			return statusReport{}, err
		}
		return statusReport{Running: true, Status: st}, nil
	}

	logger.Debug("voiceclockd not running, reading state file")

	s, _, err := currentSettings(ctx)
	if err != nil {
		return statusReport{}, err
	}
	st := dbus.Status{
		Language: string(s.Language),
		Interval: uint32(s.Interval),
		Muted:    s.Muted,
		NextAt:   schedule.Next(time.Now(), s.Interval).Unix(),
	}

	if statePath, err := store.StateFilePath(); err == nil {
		if state, err := store.LoadRuntimeState(statePath); err == nil {
			st.StartedAt = state.StartedAt
			st.LastError = state.LastError
			st.LastErrorAt = state.LastErrorAt
			if a := state.LastAnnouncement; a != nil {
				st.LastSlot = a.Slot
				st.LastOutcome = string(a.Outcome)
				st.LastAt = a.Timestamp
			}
		}
	}

	if cfg, err := daemonConfig(); err == nil {
		if root, err := cfg.AssetsPath(); err == nil {
			library := assets.NewLibrary(root, cfg.Assets.Formats, logger)
			if err := library.Scan(); err == nil {
				st.AssetRoot = root
				st.MissingClips = uint32(len(library.Verify(s.Language)))
			}
		}
	}

	return statusReport{Running: false, Status: st}, nil
}

func printStatus(r statusReport) {
	if r.Running {
		fmt.Printf("voiceclockd: running (%s", r.Version)
		if r.StartedAt > 0 {
			fmt.Printf(", started %s", humanize.Time(time.Unix(r.StartedAt, 0)))
		}
		fmt.Println(")")
	} else {
		fmt.Println("voiceclockd: not running")
	}

	fmt.Printf("Language:   %s\n", config.Language(r.Language).DisplayName())
	fmt.Printf("Interval:   %s\n", config.Interval(r.Interval))
	if r.Muted {
		fmt.Println("Muted:      yes")
	} else {
		fmt.Println("Muted:      no")
	}

	if r.LastSlot != "" {
		fmt.Printf("Last:       %s (%s, %s)\n", r.LastSlot, r.LastOutcome, humanize.Time(time.Unix(r.LastAt, 0)))
	}
	if r.NextAt > 0 {
		next := time.Unix(r.NextAt, 0)
		fmt.Printf("Next:       %s (%s)\n", next.Format("15:04"), humanize.Time(next))
	}
	if r.AssetRoot != "" {
		fmt.Printf("Clips:      %s", r.AssetRoot)
		if r.MissingClips > 0 {
			fmt.Printf(" (%d missing)", r.MissingClips)
		}
		fmt.Println()
	}
	if r.LastError != "" {
		fmt.Printf("Last error: %s (%s)\n", r.LastError, humanize.Time(time.Unix(r.LastErrorAt, 0)))
	}
	if r.Running {
		fmt.Printf("History:    %s announcements\n", humanize.Comma(int64(r.HistoryLength)))
	}
}

// waybarStatus renders the report as a Waybar module.
func waybarStatus(r statusReport, now time.Time) WaybarStatus {
	if !r.Running {
		return WaybarStatus{Text: "", Alt: "stopped", Class: "stopped", Tooltip: "voiceclockd is not running"}
	}

	var tooltip []string
	tooltip = append(tooltip, fmt.Sprintf("%s, %s", config.Language(r.Language).DisplayName(),
		strings.ToLower(config.Interval(r.Interval).String())))
	if r.LastSlot != "" {
		tooltip = append(tooltip, fmt.Sprintf("Last: %s (%s)", r.LastSlot, r.LastOutcome))
	}
	if r.MissingClips > 0 {
		tooltip = append(tooltip, fmt.Sprintf("%d clips missing", r.MissingClips))
	}

	if r.Muted {
		return WaybarStatus{Text: "muted", Alt: "muted", Class: "muted", Tooltip: strings.Join(tooltip, "\n")}
	}

	next := time.Unix(r.NextAt, 0)
	tooltip = append(tooltip, "Next: "+humanize.RelTime(next, now, "ago", "from now"))

	class := "on"
	if r.MissingClips > 0 || r.LastOutcome == "missing" || r.LastOutcome == "failed" {
		class = "warning"
	}
	return WaybarStatus{
		Text:    next.Format("15:04"),
		Alt:     class,
		Class:   class,
		Tooltip: strings.Join(tooltip, "\n"),
	}
}
