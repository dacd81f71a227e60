package cmd

import (
	"fmt"
	"os"
	"strings"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"

	"github.com/dotcommander/yar/internal/config"
)

func newManCmd(root *cobra.Command, cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:                   "man",
		Short:                 "Generates manpages",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Hidden:                true,
		Args:                  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			manPage, err := mcobra.NewManPage(1, root)
			if err != nil {
				return fmt.Errorf("build man page: %w", err)
			}
			manPage = manPage.WithSection("Files", manFiles(cfg))
			_, err = fmt.Fprint(os.Stdout, manPage.Build(roff.NewDocument()))
			if err != nil {
				return fmt.Errorf("write man page: %w", err)
			}
			return nil
		},
	}
}

// manFiles describes where settings, cached runs and logs live.
func manFiles(cfg *config.Config) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n  Settings, created from defaults on first run.\n", cfg.SettingsPath)
	switch cfg.CacheBackend {
	case config.BackendSQLite:
		fmt.Fprintf(&b, "%s\n  Cached searches, scrapes and reports.\n", cfg.SQLitePath())
	case config.BackendFile:
		fmt.Fprintf(&b, "%s\n  Cached searches, scrapes and reports.\n", cfg.FileCachePath())
	}
	fmt.Fprintf(&b, "%s\n  Finished runs for the history command.\n", cfg.HistoryPath())
	if cfg.LogFile != "" {
		fmt.Fprintf(&b, "%s\n  Log output.", cfg.LogFile)
	} else {
		fmt.Fprintf(&b, "%s\n  Log output while the progress view is on screen.", cfg.DefaultLogFile())
	}
	return b.String()
}
