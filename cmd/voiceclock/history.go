package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/adapter/output"
	"github.com/jmylchreest/voiceclock/internal/config"
	"github.com/jmylchreest/voiceclock/internal/core"
	"github.com/jmylchreest/voiceclock/internal/model"
	"github.com/jmylchreest/voiceclock/internal/store"
)

var historyOpts struct {
	historyFile string

	// Filter options
	since    string
	outcome  string
	language string
	filter   string
	search   string
	limit    int

	// Sort options
	sortBy    string
	sortOrder string

	// Output options
	field    string
	template string
	index    bool
	path     bool
}

var pruneOpts struct {
	olderThan string
	keep      int
	dryRun    bool
}

var historyCmd = &cobra.Command{
	Use:   "history [index|id]",
	Short: "Query announcement history",
	Long: `List past announcements: what was played, muted or missing.

With an index (1-based, after filtering and sorting) or ID argument, shows
that single announcement.

Examples:
  # Everything from the last day
  voiceclock history --since 1d

  # Boundaries that had no clip
  voiceclock history --outcome missing

  # Evening Bangla announcements, oldest first
  voiceclock history --filter "language=bn,hour>=18" --order asc

  # Clip path of the latest announcement
  voiceclock history 1 --field path

  # As JSON
  voiceclock history --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old announcements from history",
	Long: `Remove old announcements from the history file.

Examples:
  # Remove announcements older than 7 days
  voiceclock history prune --older-than 7d

  # Keep only the 100 most recent announcements
  voiceclock history prune --keep 100

  # Preview what would be removed
  voiceclock history prune --older-than 48h --dry-run`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count announcements by outcome",
	Args:  cobra.NoArgs,
	RunE:  runHistoryStats,
}

func init() {
	historyCmd.PersistentFlags().StringVar(&historyOpts.historyFile, "history-file", "",
		"Path to history file (default: ~/.local/share/voiceclock/history.jsonl)")

	historyCmd.Flags().StringVar(&historyOpts.since, "since", "",
		"Show announcements from the last duration (e.g., 1h, 7d, 1w)")
	historyCmd.Flags().StringVar(&historyOpts.outcome, "outcome", "",
		"Filter by outcome (played, forced, muted, missing, failed)")
	historyCmd.Flags().StringVar(&historyOpts.language, "language", "",
		"Filter by language (en, bn)")
	historyCmd.Flags().StringVar(&historyOpts.filter, "filter", "",
		"Filter expression (e.g. \"outcome=missing,hour>=18\")")
	historyCmd.Flags().StringVarP(&historyOpts.search, "search", "s", "",
		"Search slot, clip path and error")
	historyCmd.Flags().IntVarP(&historyOpts.limit, "limit", "n", 0,
		"Maximum number of announcements to show (0=unlimited)")

	historyCmd.Flags().StringVar(&historyOpts.sortBy, "sort", "timestamp",
		"Sort by field (timestamp, slot, outcome)")
	historyCmd.Flags().StringVar(&historyOpts.sortOrder, "order", "desc",
		"Sort order (asc, desc)")

	historyCmd.Flags().StringVar(&historyOpts.field, "field", "",
		"Output a single field (id, slot, language, outcome, path, error)")
	historyCmd.Flags().StringVar(&historyOpts.template, "template", "",
		"Custom Go template for plain/line output")
	historyCmd.Flags().BoolVar(&historyOpts.index, "index", false,
		"Prefix entries with their 1-based index")
	historyCmd.Flags().BoolVar(&historyOpts.path, "path", false,
		"Show clip paths")

	historyPruneCmd.Flags().StringVar(&pruneOpts.olderThan, "older-than", "",
		"Remove announcements older than this duration (e.g., 48h, 7d, 1w)")
	historyPruneCmd.Flags().IntVar(&pruneOpts.keep, "keep", 0,
		"Keep only the N most recent announcements (0=unlimited)")
	historyPruneCmd.Flags().BoolVar(&pruneOpts.dryRun, "dry-run", false,
		"Show what would be removed without actually removing")

	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(historyStatsCmd)
	rootCmd.AddCommand(historyCmd)
}

func historyPath() (string, error) {
	if historyOpts.historyFile != "" {
		return historyOpts.historyFile, nil
	}
	return store.HistoryPath()
}

// loadHistory reads the history file without taking it over from the daemon.
func loadHistory() ([]model.Announcement, error) {
	path, err := historyPath()
	if err != nil {
		return nil, err
	}
	as, err := store.ReadHistory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	logger.Debug("history loaded", "path", path, "count", len(as))
	return as, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	as, err := loadHistory()
	if err != nil {
		return err
	}

	as, err = queryHistory(as)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		a := lookup(as, args[0])
		if a == nil {
			return fmt.Errorf("announcement %s not found", args[0])
		}
		as = []model.Announcement{*a}
	}

	if historyOpts.field != "" {
		for i := range as {
			fmt.Println(output.FormatField(&as[i], historyOpts.field))
		}
		return nil
	}

	opts := output.DefaultFormatterOptions()
	opts.Template = historyOpts.template
	opts.ShowIndex = historyOpts.index
	opts.ShowPath = historyOpts.path
	return output.NewFormatter(format, opts).Format(os.Stdout, as)
}

// queryHistory applies the filter, search, sort and limit flags.
func queryHistory(as []model.Announcement) ([]model.Announcement, error) {
	opts := store.FilterOptions{}

	if historyOpts.since != "" {
		d, err := core.ParseDuration(historyOpts.since)
		if err != nil {
			return nil, err
		}
		opts.Since = d
	}
	if historyOpts.outcome != "" {
		o, err := core.ParseOutcome(historyOpts.outcome)
		if err != nil {
			return nil, err
		}
		opts.Outcome = o
	}
	if historyOpts.language != "" {
		lang, err := config.ParseLanguage(historyOpts.language)
		if err != nil {
			return nil, err
		}
		opts.Language = string(lang)
	}

	expr, err := core.ParseFilter(historyOpts.filter)
	if err != nil {
		return nil, err
	}

	field, err := core.ParseSortField(historyOpts.sortBy)
	if err != nil {
		return nil, err
	}
	order, err := core.ParseSortOrder(historyOpts.sortOrder)
	if err != nil {
		return nil, err
	}

	as = store.FilterAnnouncements(as, opts)
	as = core.FilterWithExpr(as, expr)
	as = core.Search(as, historyOpts.search)
	core.Sort(as, core.SortOptions{Field: field, Order: order})

	if historyOpts.limit > 0 && len(as) > historyOpts.limit {
		as = as[:historyOpts.limit]
	}
	return as, nil
}

// lookup resolves a 1-based index or an ID prefix.
func lookup(as []model.Announcement, arg string) *model.Announcement {
	if idx, err := strconv.Atoi(arg); err == nil && idx > 0 {
		return core.LookupByIndex(as, idx)
	}
	return core.LookupByID(as, arg)
}

func runPrune(cmd *cobra.Command, args []string) error {
	if pruneOpts.olderThan == "" && pruneOpts.keep == 0 {
		return fmt.Errorf("specify --older-than or --keep")
	}

	var olderThan time.Duration
	if pruneOpts.olderThan != "" {
		d, err := core.ParseDuration(pruneOpts.olderThan)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		olderThan = d
	}

	path, err := historyPath()
	if err != nil {
		return err
	}

	if !pruneOpts.dryRun && historyOpts.historyFile == "" {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if connectDaemon(ctx) != nil {
			return errors.New("voiceclockd is running and owns the history file; stop it first or lower [history] length in voiceclockd.toml")
		}
	}

	if pruneOpts.dryRun {
		as, err := store.ReadHistory(path)
		if err != nil {
			return err
		}
		n := countPrunable(as, olderThan, pruneOpts.keep, time.Now())
		fmt.Printf("Would remove %s of %s announcements\n", humanize.Comma(int64(n)), humanize.Comma(int64(len(as))))
		return nil
	}

	persistence, err := store.NewJSONLPersistence(path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	history := store.NewStore(persistence, 0)
	defer func() { _ = history.Close() }()

	if err := history.Hydrate(); err != nil {
		return err
	}

	removed, err := history.Prune(olderThan, pruneOpts.keep)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	fmt.Printf("Removed %s announcements, %s remain\n", humanize.Comma(int64(removed)), humanize.Comma(int64(history.Count())))
	return nil
}

// countPrunable mirrors Store.Prune without modifying anything.
func countPrunable(as []model.Announcement, olderThan time.Duration, keep int, now time.Time) int {
	sorted := append([]model.Announcement(nil), as...)
	core.Sort(sorted, core.DefaultSortOptions())

	cutoff := now.Add(-olderThan)
	n := 0
	for i, a := range sorted {
		if (keep > 0 && i >= keep) || (olderThan > 0 && a.TimestampTime().Before(cutoff)) {
			n++
		}
	}
	return n
}

func runHistoryStats(cmd *cobra.Command, args []string) error {
	as, err := loadHistory()
	if err != nil {
		return err
	}

	counts := core.OutcomeCounts(as)
	view := make(map[string]int, len(counts))
	for o, n := range counts {
		view[string(o)] = n
	}
	if handled, err := output.Write(os.Stdout, format, view); handled {
		return err
	}

	fmt.Printf("%-8s %s\n", "total", humanize.Comma(int64(len(as))))
	for _, o := range model.Outcomes() {
		fmt.Printf("%-8s %s\n", o, humanize.Comma(int64(counts[o])))
	}
	return nil
}
