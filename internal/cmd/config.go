package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/editor"
	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/errs"
	"github.com/dotcommander/yar/internal/present"
	"github.com/spf13/cobra"
)

var dirNames = []string{"config", "cache", "history", "log"}

func newConfigCmd(rt *runtime) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			// Opening the editor must work even when the settings file is broken.
			return editSettings(&rt.cfg)
		},
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "edit",
		Short: "Open settings in $EDITOR",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return editSettings(&rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Back up settings and write the defaults",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return resetSettings(&rt.cfg)
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:       "dirs [config|cache|history|log]",
		Short:     "Print the directories yar reads and writes",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: dirNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			printDirs(cmd.OutOrStdout(), &rt.cfg, args)
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective research pipeline settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			printPipeline(cmd.OutOrStdout(), present.StdoutStyles(), &rt.cfg)
			return nil
		},
	})

	return configCmd
}

func editSettings(cfg *config.Config) error {
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	c, err := editor.Cmd(filepath.Base(os.Args[0]), cfg.SettingsPath)
	if err != nil {
		return errs.Wrap(err, "Could not edit your settings file.")
	}
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return errs.Wrapf(err, "Missing %s.", present.StderrStyles().InlineCode.Render("$EDITOR"))
	}

	if !cfg.Quiet {
		present.Confirmation(os.Stderr, present.StderrRenderer(), present.ActionWrote, cfg.SettingsPath)
	}
	return nil
}

// resetSettings moves the current settings file aside and writes a fresh one
// from the template.
func resetSettings(cfg *config.Config) error {
	backup := cfg.SettingsPath + ".bak"
	if err := os.Rename(cfg.SettingsPath, backup); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errs.Wrapf(err, "There is no settings file at %s.", cfg.SettingsPath)
		}
		return errs.Wrap(err, "Couldn't back up the settings file.")
	}
	if err := config.WriteConfigFile(cfg.SettingsPath); err != nil {
		return errs.Wrap(err, "Couldn't write new settings file.")
	}

	if !cfg.Quiet {
		styles := present.StderrStyles()
		fmt.Fprintf(
			os.Stderr,
			"\nSettings restored to defaults!\n\n  %s %s\n\n",
			styles.Comment.Render("Your old settings have been saved to:"),
			styles.Link.Render(backup),
		)
	}
	return nil
}

func dirPath(cfg *config.Config, name string) string {
	switch name {
	case "config":
		return filepath.Dir(cfg.SettingsPath)
	case "cache":
		return cfg.CachePath
	case "history":
		return cfg.HistoryPath()
	case "log":
		if cfg.LogFile != "" {
			return filepath.Dir(cfg.LogFile)
		}
		return filepath.Dir(cfg.DefaultLogFile())
	}
	return ""
}

func printDirs(w io.Writer, cfg *config.Config, args []string) {
	if len(args) > 0 {
		if dir := dirPath(cfg, args[0]); dir != "" {
			fmt.Fprintln(w, dir)
			return
		}
	}

	width := 0
	for _, name := range dirNames {
		width = max(width, len(name))
	}
	for _, name := range dirNames {
		fmt.Fprintf(w, "%*s: %s\n", width, name, dirPath(cfg, name))
	}
}

// printPipeline lists the settings that decide how a research run behaves.
func printPipeline(w io.Writer, styles present.Styles, cfg *config.Config) {
	cacheBackend := cfg.CacheBackend
	switch cfg.CacheBackend {
	case config.BackendSQLite:
		cacheBackend += " (" + cfg.SQLitePath() + ", table " + cfg.CacheTable + ")"
	case config.BackendFile:
		cacheBackend += " (" + cfg.FileCachePath() + ")"
	}

	searchEngine := cfg.SearchEngine
	if cfg.SearchEngine == config.EngineMCP {
		searchEngine += " (" + cfg.MCPSearchTool + ")"
	}
	fetcher := cfg.Fetcher
	if cfg.Fetcher == config.FetcherMCP {
		fetcher += " (" + cfg.MCPFetchTool + ")"
	}
	searchModel := cfg.SearchModel
	if searchModel == "" {
		searchModel = cfg.Model
	}

	rows := [][2]string{
		{"model", cfg.API + "/" + cfg.Model},
		{"search model", searchModel},
		{"cache", cacheBackend},
		{"search cache", strconv.FormatBool(cfg.UseSearchCache)},
		{"scrape cache", strconv.FormatBool(cfg.UseScrapeCache)},
		{"cached report", strconv.FormatBool(cfg.UseCachedReport)},
		{"search engine", searchEngine},
		{"sources", fmt.Sprintf("pick %d of %d, %d attempts", cfg.SearchPick, cfg.SearchResults, cfg.SearchAttempts)},
		{"fetcher", fetcher},
		{"scrape", fmt.Sprintf("%d at a time, %s timeout, %d-%d chars", cfg.ScrapeConcurrent, cfg.ScrapeTimeout, cfg.ScrapeMinChars, cfg.ScrapeMaxChars)},
	}
	if cfg.Instructions != "" {
		rows = append(rows, [2]string{"instructions", firstLine(cfg.Instructions)})
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row[0]))
	}
	for _, row := range rows {
		label := styles.Flag.Render(fmt.Sprintf("%-*s", width, row[0]))
		fmt.Fprintf(w, "%s  %s\n", label, row[1])
	}
}

func firstLine(s string) string {
	line, _, more := strings.Cut(strings.TrimSpace(s), "\n")
	if more {
		return line + " …"
	}
	return line
}
