package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/present"
)

func initRootFlags(cmd *cobra.Command, cfg *config.Config) {
	desc := func(name string) string {
		return present.StdoutStyles().FlagDesc.Render(helpText[name])
	}
	flags := cmd.Flags()
	flags.StringVarP(&cfg.Model, "model", "m", cfg.Model, desc("model"))
	flags.BoolVarP(&cfg.AskModel, "ask-model", "M", cfg.AskModel, desc("ask-model"))
	flags.StringVarP(&cfg.API, "api", "a", cfg.API, desc("api"))
	flags.StringVar(&cfg.SearchModel, "search-model", cfg.SearchModel, desc("search-model"))
	flags.StringVarP(&cfg.HTTPProxy, "http-proxy", "x", cfg.HTTPProxy, desc("http-proxy"))
	flags.BoolVar(&cfg.UseSearchCache, "search-cache", cfg.UseSearchCache, desc("search-cache"))
	flags.BoolVar(&cfg.UseScrapeCache, "scrape-cache", cfg.UseScrapeCache, desc("scrape-cache"))
	flags.BoolVar(&cfg.UseCachedReport, "cached-report", cfg.UseCachedReport, desc("cached-report"))
	flags.BoolVarP(&cfg.Fresh, "fresh", "F", cfg.Fresh, desc("fresh"))
	flags.StringVar(&cfg.CacheBackend, "cache-backend", cfg.CacheBackend, desc("cache-backend"))
	flags.StringVar(&cfg.SearchEngine, "search-engine", cfg.SearchEngine, desc("search-engine"))
	flags.IntVar(&cfg.SearchPick, "search-pick", cfg.SearchPick, desc("search-pick"))
	flags.StringVar(&cfg.Fetcher, "fetcher", cfg.Fetcher, desc("fetcher"))
	flags.StringVarP(&cfg.Instructions, "instructions", "i", cfg.Instructions, desc("instructions"))
	flags.BoolVarP(&cfg.Raw, "raw", "r", cfg.Raw, desc("raw"))
	flags.BoolVarP(&cfg.Copy, "copy", "c", cfg.Copy, desc("copy"))
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, desc("quiet"))
	flags.BoolVarP(&cfg.Verbose, "verbose", "V", cfg.Verbose, desc("verbose"))
	flags.BoolVarP(&cfg.OpenEditor, "editor", "e", false, desc("editor"))
	flags.IntVar(&cfg.WordWrap, "word-wrap", cfg.WordWrap, desc("word-wrap"))
	flags.StringVar(&cfg.Theme, "theme", cfg.Theme, desc("theme"))
	flags.Int64Var(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, desc("max-tokens"))
	flags.Int64Var(&cfg.MaxCompletionTokens, "max-completion-tokens", cfg.MaxCompletionTokens, desc("max-completion-tokens"))
	flags.Float64Var(&cfg.Temperature, "temp", cfg.Temperature, desc("temp"))
	flags.Float64Var(&cfg.TopP, "topp", cfg.TopP, desc("topp"))
	flags.Int64Var(&cfg.TopK, "topk", cfg.TopK, desc("topk"))
	flags.StringArrayVar(&cfg.MCPDisable, "mcp-disable", cfg.MCPDisable, desc("mcp-disable"))
	flags.BoolVar(&cfg.ResetSettings, "reset-settings", cfg.ResetSettings, desc("reset-settings"))
	flags.BoolVar(&cfg.EditSettings, "settings", false, desc("settings"))
	flags.BoolVar(&cfg.Dirs, "dirs", false, desc("dirs"))
	flags.BoolVarP(&cfg.ShowHelp, "help", "h", false, desc("help"))
	flags.BoolVarP(&cfg.Version, "version", "v", false, desc("version"))
	flags.SortFlags = false

	flags.BoolVar(&memprofile, "memprofile", false, "Write memory profiles to the cache directory")
	_ = flags.MarkHidden("memprofile")

	_ = cmd.RegisterFlagCompletionFunc("api", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, api := range cfg.APIs {
			names = append(names, api.Name)
		}
		return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("model", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, api := range cfg.APIs {
			if cfg.API != "" && api.Name != cfg.API {
				continue
			}
			for name, mod := range api.Models {
				names = append(names, name)
				names = append(names, mod.Aliases...)
			}
		}
		return filterPrefix(names, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("cache-backend", cobra.FixedCompletions(
		[]string{config.BackendSQLite, config.BackendFile, config.BackendMemory}, cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("search-engine", cobra.FixedCompletions(
		[]string{config.EngineDuckDuckGo, config.EngineRSS, config.EngineMCP}, cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("fetcher", cobra.FixedCompletions(
		[]string{config.FetcherHTTP, config.FetcherMCP}, cobra.ShellCompDirectiveNoFileComp))

	// Topics from earlier runs complete the positional argument.
	cmd.ValidArgsFunction = func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 || cfg.CachePath == "" {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		db, err := openRunDB(cfg.HistoryPath())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		defer db.Close() //nolint:errcheck
		var topics []string
		for _, run := range db.List() {
			topics = append(topics, run.Topic)
		}
		return filterPrefix(topics, toComplete), cobra.ShellCompDirectiveNoFileComp
	}

	cmd.MarkFlagsMutuallyExclusive("settings", "reset-settings", "dirs")
}
