package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/voiceclock/internal/adapter/output"
	"github.com/jmylchreest/voiceclock/internal/assets"
	"github.com/jmylchreest/voiceclock/internal/config"
)

var assetsOpts struct {
	dir      string
	language string
	interval string
	ext      string
}

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Inspect the recorded clip library",
	Long: `Inspect the clip library voiceclockd plays from.

Clips live in one directory per language under the asset root, named by
12-hour clock time: 01_00.ogg, 01_15.ogg ... 12_45.ogg. Each file serves
both the AM and PM boundary. An .mp3 is used when the .ogg is absent.`,
}

var assetsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "List missing clips",
	Args:  cobra.NoArgs,
	RunE:  runAssetsVerify,
}

var assetsChecklistCmd = &cobra.Command{
	Use:   "checklist",
	Short: "Print the clip file names to record",
	Long: `Print the file names needed to announce every boundary of an
interval, in clock order. Use it as a recording checklist.`,
	Args: cobra.NoArgs,
	RunE: runAssetsChecklist,
}

func init() {
	assetsCmd.PersistentFlags().StringVar(&assetsOpts.dir, "dir", "",
		"Asset root (default: from voiceclockd.toml)")
	assetsCmd.PersistentFlags().StringVarP(&assetsOpts.language, "language", "l", "",
		"Only this language (en, bn)")

	assetsChecklistCmd.Flags().StringVarP(&assetsOpts.interval, "interval", "i", "15",
		"Interval to cover (15, 30, 60)")
	assetsChecklistCmd.Flags().StringVar(&assetsOpts.ext, "ext", ".ogg",
		"File extension")

	assetsCmd.AddCommand(assetsVerifyCmd)
	assetsCmd.AddCommand(assetsChecklistCmd)
	rootCmd.AddCommand(assetsCmd)
}

// assetLanguages returns the --language selection, or every language.
func assetLanguages() ([]config.Language, error) {
	if assetsOpts.language == "" {
		return config.ValidLanguages(), nil
	}
	lang, err := config.ParseLanguage(assetsOpts.language)
	if err != nil {
		return nil, err
	}
	return []config.Language{lang}, nil
}

// openLibrary scans the configured clip library.
func openLibrary() (*assets.Library, error) {
	cfg, err := daemonConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	root := assetsOpts.dir
	if root == "" {
		root, err = cfg.AssetsPath()
		if err != nil {
			return nil, err
		}
	}

	library := assets.NewLibrary(root, cfg.Assets.Formats, logger)
	if err := library.Scan(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return library, nil
}

type verifyOutput struct {
	Root    string           `json:"root" yaml:"root"`
	Counts  map[string]int   `json:"counts" yaml:"counts"`
	Missing []assets.Missing `json:"missing" yaml:"missing"`
}

func runAssetsVerify(cmd *cobra.Command, args []string) error {
	langs, err := assetLanguages()
	if err != nil {
		return err
	}
	library, err := openLibrary()
	if err != nil {
		return err
	}

	missing := library.Verify(langs...)

	view := verifyOutput{Root: library.Root(), Counts: make(map[string]int), Missing: missing}
	for _, lang := range langs {
		view.Counts[string(lang)] = library.Count(lang)
	}
	if view.Missing == nil {
		view.Missing = []assets.Missing{}
	}
	if handled, err := output.Write(os.Stdout, format, view); handled {
		return err
	}

	for _, lang := range langs {
		fmt.Printf("%s: %d/%d clips\n", library.Label(lang), library.Count(lang), assets.ClipsPerLanguage)
	}
	for _, m := range missing {
		fmt.Printf("  missing %s\n", filepath.Join(m.Dir, m.Clip))
	}

	if len(missing) > 0 {
		return fmt.Errorf("%d clips missing", len(missing))
	}
	fmt.Println("All clips present")
	return nil
}

func runAssetsChecklist(cmd *cobra.Command, args []string) error {
	interval, err := config.ParseInterval(assetsOpts.interval)
	if err != nil {
		return err
	}
	langs, err := assetLanguages()
	if err != nil {
		return err
	}

	names := assets.Checklist(interval, assetsOpts.ext)

	// The directories only matter when a root is known
	var library *assets.Library
	if l, err := openLibrary(); err == nil {
		library = l
	} else {
		logger.Debug("no clip library", "error", err)
	}

	if handled, err := output.Write(os.Stdout, format, checklistView(library, langs, names)); handled {
		return err
	}

	for _, lang := range langs {
		prefix := string(lang)
		if library != nil {
			prefix = filepath.Join(library.Root(), string(lang))
		}
		for _, name := range names {
			fmt.Println(filepath.Join(prefix, name))
		}
	}
	return nil
}

func checklistView(library *assets.Library, langs []config.Language, names []string) map[string][]string {
	view := make(map[string][]string, len(langs))
	for _, lang := range langs {
		files := make([]string, 0, len(names))
		for _, name := range names {
			if library != nil {
				files = append(files, filepath.Join(library.Root(), string(lang), name))
			} else {
				files = append(files, filepath.Join(string(lang), name))
			}
		}
		view[string(lang)] = files
	}
	return view
}
