package cmd

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/x/editor"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/dotcommander/yar/internal/agent"
	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/errs"
	"github.com/dotcommander/yar/internal/logging"
	"github.com/dotcommander/yar/internal/mcp"
	"github.com/dotcommander/yar/internal/present"
	"github.com/dotcommander/yar/internal/research"
	"github.com/dotcommander/yar/internal/storage"
	"github.com/dotcommander/yar/internal/tui"
)

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error
}

// NewRootCmd constructs the Cobra root command.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{build: normalizeBuildInfo(build), cfg: cfg, cfgErr: cfgErr}

	rootCmd := &cobra.Command{
		Use:           "yar [topic]",
		Short:         "Research any topic from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)
			return rt.runResearch(cmd, args)
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initRootFlags(rootCmd, &rt.cfg)

	rootCmd.AddCommand(newHistoryCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newMCPCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd, &rt.cfg))
	rootCmd.AddCommand(newUpgradeCmd(rt))

	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

func (rt *runtime) runResearch(cmd *cobra.Command, args []string) error {
	// Settings maintenance works even when the settings file is broken.
	switch {
	case rt.cfg.ShowHelp:
		drainStdin()
		if err := cmd.Usage(); err != nil {
			return fmt.Errorf("usage: %w", err)
		}
		return nil
	case rt.cfg.Dirs:
		drainStdin()
		printDirs(cmd.OutOrStdout(), &rt.cfg, args)
		return nil
	case rt.cfg.EditSettings:
		drainStdin()
		return editSettings(&rt.cfg)
	case rt.cfg.ResetSettings:
		drainStdin()
		return resetSettings(&rt.cfg)
	}
	if rt.cfgErr != nil {
		return rt.cfgErr
	}
	if err := rt.cfg.Validate(); err != nil {
		return err
	}

	if err := rt.resolveTopic(args); err != nil {
		return err
	}
	if rt.cfg.AskModel && present.IsInputTTY() {
		if err := promptForAPIAndModel(&rt.cfg); err != nil {
			return promptError(err)
		}
	}
	if os.Getenv("VIMRUNTIME") != "" {
		rt.cfg.Quiet = true
	}
	interactive := present.IsOutputTTY() && !rt.cfg.Raw && !rt.cfg.Quiet

	logger, closeLog, err := rt.logger(interactive)
	if err != nil {
		return err
	}
	defer closeLog() //nolint:errcheck

	ctx := cmd.Context()
	svc := agent.New(&rt.cfg, logger, mcp.New(&rt.cfg))
	pl, err := svc.Pipeline(ctx)
	if err != nil {
		return svc.ReasonForError(err, config.Model{API: rt.cfg.API, Name: rt.cfg.Model})
	}
	defer pl.Close() //nolint:errcheck

	runID := storage.NewRunID()
	topic := rt.cfg.Topic
	req := svc.Request(topic, runID)
	logger.Debug("research started", "run", runID, "topic", topic, "api", pl.Model.API, "model", pl.Model.Name)

	var final research.Event
	if interactive {
		final, err = rt.runInteractive(ctx, func(ctx context.Context) iter.Seq[research.Event] {
			return pl.Orchestrator.Run(ctx, req)
		})
		if err != nil {
			return err
		}
	} else {
		final = streamReport(os.Stdout, os.Stderr, present.StderrStyles(), pl.Orchestrator.Run(ctx, req), rt.cfg.Quiet)
	}

	if err := recordRun(rt.cfg.HistoryPath(), runRecord(runID, topic, final, pl.Model)); err != nil {
		logger.Warn("could not record run", "run", runID, "err", err)
	}
	return rt.finish(svc, pl.Model, final)
}

// runInteractive shows the progress view. Quitting it cancels the context
// start receives, and the run has stopped by the time this returns.
func (rt *runtime) runInteractive(ctx context.Context, start func(context.Context) iter.Seq[research.Event]) (research.Event, error) {
	opts := []tea.ProgramOption{tea.WithOutput(os.Stderr)}
	if !present.IsInputTTY() {
		opts = append(opts, tea.WithInput(nil))
	}

	m := tui.NewResearch(ctx, present.StderrRenderer(), &rt.cfg, rt.cfg.Topic, start)
	defer m.Close()
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil {
		return research.Event{}, errs.Error{Err: err, Reason: "Couldn't start Bubble Tea program."}
	}
	if out := m.GlamourOutput(); out != "" {
		fmt.Print(out)
	}
	return m.Final, nil
}

func (rt *runtime) finish(svc *agent.Service, mod config.Model, final research.Event) error {
	switch final.Type {
	case research.EventCompleted:
		if final.Cached && !rt.cfg.Quiet {
			fmt.Fprintln(os.Stderr, present.StderrStyles().Comment.Render(
				"Served from the cache. Use --fresh to research the topic again."))
		}
		if rt.cfg.Copy {
			_ = clipboard.WriteAll(final.Text)
			termenv.Copy(final.Text)
			if !rt.cfg.Quiet {
				present.Confirmation(os.Stderr, present.StderrRenderer(), present.ActionCopied,
					fmt.Sprintf("report for %q to the clipboard", rt.cfg.Topic))
			}
		}
		return nil
	case research.EventCompletedEmpty:
		fmt.Fprintln(os.Stderr, present.StderrStyles().Empty.Render(final.Text))
		return nil
	case research.EventFailed:
		return svc.ReasonForError(final.Err, mod)
	default:
		return svc.ReasonForError(context.Canceled, mod)
	}
}

func (rt *runtime) logger(interactive bool) (*slog.Logger, func() error, error) {
	lc := logging.Config{
		Level:  rt.cfg.LogLevel,
		Format: rt.cfg.LogFormat,
		File:   rt.cfg.LogFile,
	}
	if rt.cfg.Verbose {
		lc.Level = "debug"
	}
	if interactive && lc.File == "" {
		lc.File = rt.cfg.DefaultLogFile()
	}
	logger, closer, err := logging.New(lc)
	if err != nil {
		return nil, nil, errs.Wrap(err, "Could not set up logging.")
	}
	return logger, closer, nil
}

// resolveTopic reads the topic from the arguments, stdin, $EDITOR or an
// interactive prompt, in that order.
func (rt *runtime) resolveTopic(args []string) error {
	topic := normalizeTopic(strings.Join(args, " "))
	if topic == "" && !present.IsInputTTY() {
		in, err := readTopic(os.Stdin)
		if err != nil {
			return errs.Wrap(err, "Unable to read stdin.")
		}
		topic = in
	}
	if topic == "" && rt.cfg.OpenEditor && present.IsInputTTY() {
		in, err := topicFromEditor(rt.cfg.SettingsPath)
		if err != nil {
			return errs.Wrap(err, "Could not read the topic from your editor.")
		}
		topic = normalizeTopic(in)
	}
	if topic == "" && present.IsInputTTY() && present.IsOutputTTY() {
		in, err := askTopic(&rt.cfg)
		if err != nil {
			return promptError(err)
		}
		topic = normalizeTopic(in)
	}
	if topic == "" {
		return errs.Error{
			Reason: "You haven't provided a research topic.",
			Err: errs.UserErrorf(
				"You can give the topic as arguments or pipe it from STDIN.\nExample: %s",
				present.StdoutStyles().InlineCode.Render(`yar "fusion energy"`),
			),
		}
	}
	rt.cfg.Topic = topic
	return nil
}

// normalizeTopic collapses whitespace so a multi-line input becomes one topic.
func normalizeTopic(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func promptError(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return errs.Error{Err: err, Reason: "User canceled."}
	}
	return errs.Error{Err: err, Reason: "Prompt failed."}
}

func topicFromEditor(appName string) (string, error) {
	f, err := os.CreateTemp("", "topic")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file: %w", err)
	}
	_ = f.Close()
	defer func() { _ = os.Remove(f.Name()) }()

	c, err := editor.Cmd(appName, f.Name())
	if err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	c.Stdin = os.Stdin
	c.Stderr = os.Stderr
	c.Stdout = os.Stdout
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	topic, err := os.ReadFile(f.Name())
	if err != nil {
		return "", fmt.Errorf("could not read file: %w", err)
	}
	return string(topic), nil
}

func askTopic(cfg *config.Config) (string, error) {
	var topic string
	err := huh.NewInput().
		Title("What should I research?").
		Description("Press tab to accept a suggestion.").
		Placeholder(exampleTopics[0]).
		Suggestions(exampleTopics).
		Validate(func(s string) error {
			if normalizeTopic(s) == "" {
				return errors.New("the topic cannot be empty")
			}
			return nil
		}).
		Value(&topic).
		WithTheme(themeFrom(cfg.Theme)).
		Run()
	if err != nil {
		return "", fmt.Errorf("topic prompt: %w", err)
	}
	return topic, nil
}

func promptForAPIAndModel(cfg *config.Config) error {
	apis := make([]huh.Option[string], 0, len(cfg.APIs))
	opts := map[string][]huh.Option[string]{}
	for _, api := range cfg.APIs {
		apis = append(apis, huh.NewOption(api.Name, api.Name))
		for name, model := range api.Models {
			opts[api.Name] = append(opts[api.Name], huh.NewOption(name, name))

			if (cfg.API == "" || cfg.API == api.Name) &&
				(cfg.Model == name || slices.Contains(model.Aliases, cfg.Model)) {
				cfg.API = api.Name
				cfg.Model = name
			}
		}
	}

	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose the API:").
				Options(apis...).
				Value(&cfg.API),
			huh.NewSelect[string]().
				TitleFunc(func() string {
					return fmt.Sprintf("Choose the model for '%s':", cfg.API)
				}, &cfg.API).
				OptionsFunc(func() []huh.Option[string] {
					return opts[cfg.API]
				}, &cfg.API).
				Value(&cfg.Model),
		),
	).
		WithTheme(themeFrom(cfg.Theme)).
		Run(); err != nil {
		return fmt.Errorf("prompt form: %w", err)
	}
	return nil
}

func themeFrom(theme string) *huh.Theme {
	switch theme {
	case "dracula":
		return huh.ThemeDracula()
	case "catppuccin":
		return huh.ThemeCatppuccin()
	case "base16":
		return huh.ThemeBase16()
	default:
		return huh.ThemeCharm()
	}
}

func filterPrefix(values []string, prefix string) []string {
	var out []string
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
