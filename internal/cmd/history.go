package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	timeago "github.com/caarlos0/timea.go"
	"github.com/charmbracelet/huh"
	xstrings "github.com/charmbracelet/x/exp/strings"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/yar/internal/agent"
	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/errs"
	"github.com/dotcommander/yar/internal/logging"
	"github.com/dotcommander/yar/internal/present"
	"github.com/dotcommander/yar/internal/research"
	"github.com/dotcommander/yar/internal/storage"
	"github.com/dotcommander/yar/internal/store"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage past research runs",
	}

	historyCmd.AddCommand(newHistoryListCmd(rt))
	historyCmd.AddCommand(newHistoryShowCmd(rt))
	historyCmd.AddCommand(newHistoryDeleteCmd(rt))
	historyCmd.AddCommand(newHistoryPruneCmd(rt))

	return historyCmd
}

func newHistoryListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List past research runs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return listRuns(&rt.cfg, rt.cfg.Raw)
		},
	}
}

func newHistoryShowCmd(rt *runtime) *cobra.Command {
	var last bool
	showCmd := &cobra.Command{
		Use:   "show [id-or-topic]",
		Short: "Show the cached report of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			drainStdin()
			in := ""
			if len(args) == 1 && !last {
				in = args[0]
			}
			return showRun(&rt.cfg, in)
		},
		ValidArgsFunction: runCompletions(rt),
	}
	showCmd.Flags().BoolVarP(&last, "last", "S", false, "Show the most recent run")
	return showCmd
}

func newHistoryDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id-or-topic> [more...]",
		Short: "Delete runs and the research cached for their topics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return deleteRuns(&rt.cfg, args)
		},
		ValidArgsFunction: runCompletions(rt),
	}
}

func newHistoryPruneCmd(rt *runtime) *cobra.Command {
	var olderThan time.Duration
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			if olderThan == 0 {
				return errs.Wrap(errs.UserErrorf("missing --older-than"), "Could not delete old runs.")
			}
			return pruneRuns(&rt.cfg, olderThan)
		},
	}
	pruneCmd.Flags().Var(newDurationFlag(olderThan, &olderThan), "older-than", helpText["older-than"])
	return pruneCmd
}

func runCompletions(rt *runtime) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if rt.cfg.CachePath == "" {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		db, err := openRunDB(rt.cfg.HistoryPath())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer db.Close() //nolint:errcheck
		return db.Completions(toComplete), cobra.ShellCompDirectiveNoFileComp
	}
}

func listRuns(cfg *config.Config, raw bool) error {
	db, err := openRunDB(cfg.HistoryPath())
	if err != nil {
		return errs.Wrap(err, "Could not open the run history.")
	}
	defer db.Close() //nolint:errcheck

	runs := db.List()
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "No research runs found.")
		return nil
	}

	if present.IsInputTTY() && present.IsOutputTTY() && !raw {
		selectFromList(runs)
		return nil
	}
	printList(runs)
	return nil
}

func showRun(cfg *config.Config, in string) error {
	db, err := openRunDB(cfg.HistoryPath())
	if err != nil {
		return errs.Wrap(err, "Could not open the run history.")
	}
	defer db.Close() //nolint:errcheck

	var run *storage.Run
	if in == "" {
		run, err = db.FindHEAD()
	} else {
		run, err = db.Find(in)
	}
	if err != nil {
		return errs.Wrap(err, "Could not find the research run.")
	}

	report, err := cachedReport(cfg, run.Topic)
	if err != nil {
		return err
	}

	out := report
	if present.IsOutputTTY() && !cfg.Raw {
		if formatted, err := present.RenderMarkdownForTTY(report, cfg.WordWrap, cfg.Theme); err == nil {
			out = formatted
		}
	}
	fmt.Print(out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Println()
	}
	return nil
}

func cachedReport(cfg *config.Config, topic string) (string, error) {
	st, err := agent.New(cfg, logging.Discard(), nil).OpenStore()
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	defer st.Close() //nolint:errcheck

	report, ok, err := store.Load[string](st, store.Reports, research.NormalizeTopic(topic))
	if err != nil {
		return "", errs.Wrap(err, "Could not read the cached report.")
	}
	if !ok || strings.TrimSpace(report) == "" {
		return "", errs.Wrapf(
			errs.UserErrorf("Run %s to research it again.", present.StderrStyles().InlineCode.Render(fmt.Sprintf("yar %q", topic))),
			"There is no cached report for %q.", topic,
		)
	}
	return report, nil
}

func deleteRuns(cfg *config.Config, targets []string) error {
	db, err := openRunDB(cfg.HistoryPath())
	if err != nil {
		return errs.Wrap(err, "Could not open the run history.")
	}
	defer db.Close() //nolint:errcheck

	var runs []storage.Run
	for _, target := range targets {
		run, err := db.Find(target)
		if err != nil {
			return errs.Wrap(err, "Couldn't find the run to delete.")
		}
		runs = append(runs, *run)
	}
	return deleteRunList(cfg, db, runs)
}

// deleteRunList removes runs and forgets the cached research of every topic
// no remaining run refers to.
func deleteRunList(cfg *config.Config, db *storage.DB, runs []storage.Run) error {
	var st *store.Store
	defer func() {
		if st != nil {
			_ = st.Close()
		}
	}()

	var forgotten []string
	for _, run := range runs {
		if err := db.Delete(run.ID); err != nil {
			return errs.Wrap(err, "Couldn't delete the run.")
		}
		if len(db.ListByKey(run.Key)) == 0 {
			if st == nil {
				s, err := agent.New(cfg, logging.Discard(), nil).OpenStore()
				if err != nil {
					return err //nolint:wrapcheck
				}
				st = s
			}
			if err := st.Forget(research.NormalizeTopic(run.Topic)); err != nil {
				return errs.Wrap(err, "Couldn't delete the cached research.")
			}
			forgotten = append(forgotten, run.Topic)
		}
		if !cfg.Quiet {
			fmt.Fprintln(os.Stderr, "Run deleted:", shortID(run.ID))
		}
	}
	if !cfg.Quiet && len(forgotten) > 0 {
		fmt.Fprintln(os.Stderr, forgottenNote(forgotten))
	}
	return nil
}

func forgottenNote(topics []string) string {
	quoted := make([]string, 0, len(topics))
	for _, topic := range topics {
		quoted = append(quoted, strconv.Quote(topic))
	}
	return "Cached research removed for " + xstrings.EnglishJoin(quoted, true) + "."
}

func pruneRuns(cfg *config.Config, olderThan time.Duration) error {
	db, err := openRunDB(cfg.HistoryPath())
	if err != nil {
		return errs.Wrap(err, "Could not open the run history.")
	}
	defer db.Close() //nolint:errcheck

	runs := db.ListOlderThan(olderThan)
	if len(runs) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(os.Stderr, "No research runs found.")
		}
		return nil
	}

	if !cfg.Quiet {
		printList(runs)

		if !present.IsOutputTTY() || !present.IsInputTTY() {
			fmt.Fprintln(os.Stderr)
			//nolint:wrapcheck
			return errs.UserErrorf(
				"To delete the runs above, run: %s",
				strings.Join(append(os.Args, "--quiet"), " "),
			)
		}
		var confirm bool
		if err := huh.Run(
			huh.NewConfirm().
				Title(fmt.Sprintf("Delete runs older than %s?", olderThan)).
				Description(fmt.Sprintf("This will delete all the %d runs listed above.", len(runs))).
				Value(&confirm),
		); err != nil {
			return errs.Wrap(err, "Couldn't delete old runs.")
		}
		if !confirm {
			//nolint:wrapcheck
			return errs.UserErrorf("Aborted by user")
		}
	}

	if err := deleteRunList(cfg, db, runs); err != nil {
		return err
	}
	if !cfg.Quiet {
		present.Confirmation(os.Stderr, present.StderrRenderer(), present.ActionPruned, fmt.Sprintf("%d runs", len(runs)))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > storage.IDShort {
		return id[:storage.IDShort]
	}
	return id
}

func makeOptions(runs []storage.Run) []huh.Option[string] {
	s := present.StdoutStyles()
	opts := make([]huh.Option[string], 0, len(runs))
	for _, run := range runs {
		timea := s.Timeago.Render(timeago.Of(run.UpdatedAt))
		left := s.SHA.Render(shortID(run.ID))
		right := s.RunList.Render(run.Topic, timea)
		right += s.Comment.Render(string(run.Outcome))
		if run.Model != "" {
			right += s.Comment.Render(" " + run.Model + " (" + run.API + ")")
		}
		opts = append(opts, huh.NewOption(left+" "+right, run.ID))
	}
	return opts
}

func selectFromList(runs []storage.Run) {
	var selected string
	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Research runs").
				Value(&selected).
				Options(makeOptions(runs)...),
		),
	).Run(); err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		return
	}

	_ = clipboard.WriteAll(selected)
	termenv.Copy(selected)
	present.Confirmation(os.Stdout, present.StdoutRenderer(), present.ActionCopied, selected)

	fmt.Println(present.StdoutStyles().Comment.Render("You can use this run ID with the following commands:"))
	suggestions := []string{
		"yar history show " + selected,
		"yar history delete " + selected,
	}
	for _, s := range suggestions {
		fmt.Printf("  %s\n", present.StdoutStyles().InlineCode.Render(s))
	}
}

func printList(runs []storage.Run) {
	for _, run := range runs {
		_, _ = fmt.Fprintf(
			os.Stdout,
			"%s\t%s\t%s\t%s\n",
			present.StdoutStyles().SHA.Render(shortID(run.ID)),
			run.Topic,
			run.Outcome,
			present.StdoutStyles().Timeago.Render(timeago.Of(run.UpdatedAt)),
		)
	}
}
