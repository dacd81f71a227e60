package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/yar/internal/errs"
)

func TestAPIs(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`
apis:
  openai:
    api-key-env: OPENAI_API_KEY
    models:
      gpt-4o:
        aliases: ["4o"]
  ollama:
    base-url: http://localhost:11434/v1
`), &cfg))
	require.Len(t, cfg.APIs, 2)
	require.Equal(t, "openai", cfg.APIs[0].Name)
	require.Equal(t, []string{"4o"}, cfg.APIs[0].Models["gpt-4o"].Aliases)
	require.Equal(t, "ollama", cfg.APIs[1].Name)
}

func TestLoad(t *testing.T) {
	t.Run("creates settings from template", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("YAR_CACHE_PATH", filepath.Join(dir, "cache"))
		path := filepath.Join(dir, "yar", "yar.yml")

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, path, cfg.SettingsPath)

		_, err = os.Stat(path)
		require.NoError(t, err)

		require.Equal(t, BackendSQLite, cfg.CacheBackend)
		require.Equal(t, "generate_research_report_workflow", cfg.CacheTable)
		require.True(t, cfg.UseSearchCache)
		require.True(t, cfg.UseScrapeCache)
		require.True(t, cfg.UseCachedReport)
		require.Equal(t, 3, cfg.SearchAttempts)
		require.Equal(t, 500*time.Millisecond, cfg.SearchBackoff)
		require.Equal(t, 20*time.Second, cfg.ScrapeTimeout)
		require.Equal(t, 15*time.Second, cfg.MCPTimeout)
		require.Contains(t, cfg.RSSURL, "{query}")
		require.NotEmpty(t, cfg.APIs)

		_, err = os.Stat(filepath.Join(dir, "cache"))
		require.NoError(t, err)
	})

	t.Run("settings file overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("YAR_CACHE_PATH", dir)
		path := filepath.Join(dir, "yar.yml")
		require.NoError(t, os.WriteFile(path, []byte(`
cache-backend: file
use-cached-report: false
search-engine: rss
scrape-concurrency: 1
`), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, BackendFile, cfg.CacheBackend)
		require.False(t, cfg.UseCachedReport)
		require.True(t, cfg.UseSearchCache)
		require.Equal(t, EngineRSS, cfg.SearchEngine)
		require.Equal(t, 1, cfg.ScrapeConcurrent)
		require.Equal(t, 7, cfg.SearchPick)
	})

	t.Run("explicit zero backoff is kept", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("YAR_CACHE_PATH", dir)
		path := filepath.Join(dir, "yar.yml")
		require.NoError(t, os.WriteFile(path, []byte("search-backoff: 0s\nscrape-concurrency: 0\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Zero(t, cfg.SearchBackoff)
		require.Equal(t, 4, cfg.ScrapeConcurrent)
	})

	t.Run("environment overrides settings", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("YAR_CACHE_PATH", dir)
		t.Setenv("YAR_CACHE_BACKEND", "memory")
		t.Setenv("YAR_USE_SEARCH_CACHE", "false")
		t.Setenv("YAR_SCRAPE_TIMEOUT", "3s")
		path := filepath.Join(dir, "yar.yml")
		require.NoError(t, os.WriteFile(path, []byte("cache-backend: file\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		require.Equal(t, BackendMemory, cfg.CacheBackend)
		require.False(t, cfg.UseSearchCache)
		require.Equal(t, 3*time.Second, cfg.ScrapeTimeout)
	})

	t.Run("broken yaml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "yar.yml")
		require.NoError(t, os.WriteFile(path, []byte("apis: [\n"), 0o600))

		_, err := Load(path)
		var e errs.Error
		require.ErrorAs(t, err, &e)
		require.Equal(t, "Could not parse settings file.", e.ReasonText())
	})
}

func TestValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		mutate func(*Config)
		ok     bool
	}{
		"defaults":          {mutate: func(*Config) {}, ok: true},
		"unknown backend":   {mutate: func(c *Config) { c.CacheBackend = "redis" }},
		"unknown engine":    {mutate: func(c *Config) { c.SearchEngine = "bing" }},
		"mcp without tool":  {mutate: func(c *Config) { c.SearchEngine = EngineMCP }},
		"mcp with tool":     {mutate: func(c *Config) { c.SearchEngine = EngineMCP; c.MCPSearchTool = "brave_search" }, ok: true},
		"mcp fetch no tool": {mutate: func(c *Config) { c.Fetcher = FetcherMCP }},
		"unknown fetcher":   {mutate: func(c *Config) { c.Fetcher = "curl" }},
		"pick above limit":  {mutate: func(c *Config) { c.SearchPick = 20 }},
		"no backoff":        {mutate: func(c *Config) { c.SearchBackoff = 0 }, ok: true},
		"negative backoff":  {mutate: func(c *Config) { c.SearchBackoff = -time.Second }},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			_, hasReason := errs.ReasonOf(err)
			require.True(t, hasReason)
		})
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.CachePath = filepath.Join("/tmp", "yar")
	require.Equal(t, filepath.Join("/tmp", "yar", "runs"), cfg.HistoryPath())
	require.Equal(t, filepath.Join("/tmp", "yar", "workflows.db"), cfg.SQLitePath())
	require.Equal(t, filepath.Join("/tmp", "yar", "research"), cfg.FileCachePath())
	require.Equal(t, filepath.Join("/tmp", "yar", "yar.log"), cfg.DefaultLogFile())
}
