package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	_ "embed"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v9"
	"github.com/charmbracelet/x/exp/ordered"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/yar/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// Cache backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Search engines.
const (
	EngineDuckDuckGo = "duckduckgo"
	EngineRSS        = "rss"
	EngineMCP        = "mcp"
)

// Page fetchers.
const (
	FetcherHTTP = "http"
	FetcherMCP  = "mcp"
)

// Model represents the LLM model used in the API call.
type Model struct {
	Name           string
	API            string
	MaxChars       int64    `yaml:"max-input-chars"`
	Aliases        []string `yaml:"aliases"`
	Fallback       string   `yaml:"fallback"`
	ThinkingBudget int      `yaml:"thinking-budget,omitempty"`
}

// API represents an API endpoint and its models.
type API struct {
	Name      string
	APIKey    string           `yaml:"api-key"`
	APIKeyEnv string           `yaml:"api-key-env"`
	APIKeyCmd string           `yaml:"api-key-cmd"`
	BaseURL   string           `yaml:"base-url"`
	Models    map[string]Model `yaml:"models"`
	User      string           `yaml:"user"`
}

// APIs is a type alias to allow custom YAML decoding.
type APIs []API

// UnmarshalYAML implements sorted API YAML decoding.
func (apis *APIs) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i < len(node.Content); i += 2 {
		var api API
		if err := node.Content[i+1].Decode(&api); err != nil {
			return fmt.Errorf("error decoding YAML file: %s", err)
		}
		api.Name = node.Content[i].Value
		*apis = append(*apis, api)
	}
	return nil
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	API                 string  `yaml:"default-api" env:"API"`
	Model               string  `yaml:"default-model" env:"MODEL"`
	SearchModel         string  `yaml:"search-model" env:"SEARCH_MODEL"`
	MaxTokens           int64   `yaml:"max-tokens" env:"MAX_TOKENS"`
	MaxCompletionTokens int64   `yaml:"max-completion-tokens" env:"MAX_COMPLETION_TOKENS"`
	Temperature         float64 `yaml:"temp" env:"TEMP"`
	TopP                float64 `yaml:"topp" env:"TOPP"`
	TopK                int64   `yaml:"topk" env:"TOPK"`
	User                string  `yaml:"user" env:"USER"`
	HTTPProxy           string  `yaml:"http-proxy" env:"HTTP_PROXY"`
	APIs                APIs    `yaml:"apis"`

	CachePath       string `yaml:"cache-path" env:"CACHE_PATH"`
	CacheBackend    string `yaml:"cache-backend" env:"CACHE_BACKEND"`
	CacheTable      string `yaml:"cache-table" env:"CACHE_TABLE"`
	UseSearchCache  bool   `yaml:"use-search-cache" env:"USE_SEARCH_CACHE"`
	UseScrapeCache  bool   `yaml:"use-scrape-cache" env:"USE_SCRAPE_CACHE"`
	UseCachedReport bool   `yaml:"use-cached-report" env:"USE_CACHED_REPORT"`

	SearchEngine     string        `yaml:"search-engine" env:"SEARCH_ENGINE"`
	SearchResults    int           `yaml:"search-results" env:"SEARCH_RESULTS"`
	SearchPick       int           `yaml:"search-pick" env:"SEARCH_PICK"`
	SearchAttempts   int           `yaml:"search-attempts" env:"SEARCH_ATTEMPTS"`
	SearchBackoff    time.Duration `yaml:"search-backoff" env:"SEARCH_BACKOFF"`
	SearchRegion     string        `yaml:"search-region" env:"SEARCH_REGION"`
	RSSURL           string        `yaml:"rss-url" env:"RSS_URL"`
	MCPSearchTool    string        `yaml:"mcp-search-tool" env:"MCP_SEARCH_TOOL"`
	Fetcher          string        `yaml:"fetcher" env:"FETCHER"`
	MCPFetchTool     string        `yaml:"mcp-fetch-tool" env:"MCP_FETCH_TOOL"`
	ScrapeTimeout    time.Duration `yaml:"scrape-timeout" env:"SCRAPE_TIMEOUT"`
	ScrapeMaxChars   int           `yaml:"scrape-max-chars" env:"SCRAPE_MAX_CHARS"`
	ScrapeMinChars   int           `yaml:"scrape-min-chars" env:"SCRAPE_MIN_CHARS"`
	ScrapeConcurrent int           `yaml:"scrape-concurrency" env:"SCRAPE_CONCURRENCY"`
	UserAgent        string        `yaml:"user-agent" env:"USER_AGENT"`
	Instructions     string        `yaml:"writer-instructions" env:"WRITER_INSTRUCTIONS"`

	Raw      bool   `yaml:"raw" env:"RAW"`
	Quiet    bool   `yaml:"quiet" env:"QUIET"`
	WordWrap int    `yaml:"word-wrap" env:"WORD_WRAP"`
	Theme    string `yaml:"theme" env:"THEME"`

	LogLevel  string `yaml:"log-level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log-format" env:"LOG_FORMAT"`
	LogFile   string `yaml:"log-file" env:"LOG_FILE"`

	MCPServers      map[string]MCPServerConfig `yaml:"mcp-servers"`
	MCPDisable      []string                   `yaml:"mcp-disable" env:"MCP_DISABLE"`
	MCPTimeout      time.Duration              `yaml:"mcp-timeout" env:"MCP_TIMEOUT"`
	MCPNoInheritEnv bool                       `yaml:"mcp-no-inherit-env" env:"MCP_NO_INHERIT_ENV"`
}

// Runtime holds CLI/runtime-only options that should not be loaded from the
// settings file.
type Runtime struct {
	Topic         string
	Fresh         bool
	Copy          bool
	Verbose       bool
	AskModel      bool
	OpenEditor    bool
	ShowHelp      bool
	Version       bool
	ResetSettings bool
	EditSettings  bool
	Dirs          bool
	SettingsPath  string
}

// Config is the application configuration (settings + runtime-only options).
//
// Settings fields are promoted for ergonomic access, but runtime fields are
// explicitly excluded from YAML/env parsing.
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// MCPServerConfig holds configuration for an MCP server.
type MCPServerConfig struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Env     []string `yaml:"env"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// HistoryPath is the directory holding the run history.
func (c Config) HistoryPath() string { return filepath.Join(c.CachePath, "runs") }

// SQLitePath is the database used by the sqlite cache backend.
func (c Config) SQLitePath() string { return filepath.Join(c.CachePath, "workflows.db") }

// FileCachePath is the directory used by the file cache backend.
func (c Config) FileCachePath() string { return filepath.Join(c.CachePath, "research") }

// DefaultLogFile is where logs go while the progress view owns the terminal.
func (c Config) DefaultLogFile() string { return filepath.Join(c.CachePath, "yar.log") }

// SettingsFile returns the default settings file path, creating its directory.
func SettingsFile() (string, error) {
	sp, err := xdg.ConfigFile(filepath.Join("yar", "yar.yml"))
	if err != nil {
		return "", errs.Error{Err: err, Reason: "Could not create config directory."}
	}
	return sp, nil
}

// Ensure loads settings from disk and environment and applies defaults.
//
// It also creates the default settings file if it does not exist.
func Ensure() (Config, error) {
	sp, err := SettingsFile()
	if err != nil {
		return Config{}, err
	}
	return Load(sp)
}

// Load reads the settings file at path (creating it from the template when
// missing), applies .env and YAR_ environment overrides, then defaults.
func Load(path string) (Config, error) {
	c := Default()
	c.SettingsPath = path

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not create config directory."}
	}
	if err := WriteConfigFile(path); err != nil {
		return c, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, &c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, errs.Error{Err: err, Reason: "Could not parse .env file."}
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: "YAR_"}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings file."}
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return c, err
	}
	if err := os.MkdirAll(c.CachePath, 0o700); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not create cache directory."}
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	c.CachePath = ordered.First(c.CachePath, d.CachePath)
	c.CacheBackend = ordered.First(c.CacheBackend, d.CacheBackend)
	c.CacheTable = ordered.First(c.CacheTable, d.CacheTable)
	c.SearchEngine = ordered.First(c.SearchEngine, d.SearchEngine)
	c.SearchResults = ordered.First(c.SearchResults, d.SearchResults)
	c.SearchPick = ordered.First(c.SearchPick, d.SearchPick)
	c.SearchAttempts = ordered.First(c.SearchAttempts, d.SearchAttempts)
	c.RSSURL = ordered.First(c.RSSURL, d.RSSURL)
	c.Fetcher = ordered.First(c.Fetcher, d.Fetcher)
	c.ScrapeTimeout = ordered.First(c.ScrapeTimeout, d.ScrapeTimeout)
	c.ScrapeMaxChars = ordered.First(c.ScrapeMaxChars, d.ScrapeMaxChars)
	c.ScrapeMinChars = ordered.First(c.ScrapeMinChars, d.ScrapeMinChars)
	c.ScrapeConcurrent = ordered.First(c.ScrapeConcurrent, d.ScrapeConcurrent)
	c.UserAgent = ordered.First(c.UserAgent, d.UserAgent)
	c.WordWrap = ordered.First(c.WordWrap, d.WordWrap)
	c.LogLevel = ordered.First(c.LogLevel, d.LogLevel)
	c.LogFormat = ordered.First(c.LogFormat, d.LogFormat)
	c.MCPTimeout = ordered.First(c.MCPTimeout, d.MCPTimeout)
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.CacheBackend {
	case BackendSQLite, BackendFile, BackendMemory:
	default:
		return errs.Wrapf(nil, "Unknown cache backend %q, use one of sqlite, file or memory.", c.CacheBackend)
	}
	switch c.SearchEngine {
	case EngineDuckDuckGo, EngineRSS:
	case EngineMCP:
		if c.MCPSearchTool == "" {
			return errs.Wrap(nil, "The mcp search engine needs mcp-search-tool to be set.")
		}
	default:
		return errs.Wrapf(nil, "Unknown search engine %q, use one of duckduckgo, rss or mcp.", c.SearchEngine)
	}
	switch c.Fetcher {
	case FetcherHTTP:
	case FetcherMCP:
		if c.MCPFetchTool == "" {
			return errs.Wrap(nil, "The mcp fetcher needs mcp-fetch-tool to be set.")
		}
	default:
		return errs.Wrapf(nil, "Unknown fetcher %q, use one of http or mcp.", c.Fetcher)
	}
	if c.SearchBackoff < 0 {
		return errs.Wrapf(nil, "search-backoff (%s) cannot be negative, use 0s to retry without waiting.", c.SearchBackoff)
	}
	if c.SearchPick > c.SearchResults {
		return errs.Wrapf(nil, "search-pick (%d) cannot exceed search-results (%d).", c.SearchPick, c.SearchResults)
	}
	return nil
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			API:              "openai",
			Model:            "gpt-4o",
			Temperature:      -1,
			TopP:             -1,
			TopK:             -1,
			CachePath:        filepath.Join(xdg.CacheHome, "yar"),
			CacheBackend:     BackendSQLite,
			CacheTable:       "generate_research_report_workflow",
			UseSearchCache:   true,
			UseScrapeCache:   true,
			UseCachedReport:  true,
			SearchEngine:     EngineDuckDuckGo,
			SearchResults:    15,
			SearchPick:       7,
			SearchAttempts:   3,
			SearchBackoff:    500 * time.Millisecond,
			RSSURL:           "https://news.google.com/rss/search?q={query}&hl=en-US&gl=US&ceid=US:en",
			Fetcher:          FetcherHTTP,
			ScrapeTimeout:    20 * time.Second,
			ScrapeMaxChars:   20000,
			ScrapeMinChars:   200,
			ScrapeConcurrent: 4,
			UserAgent:        "Mozilla/5.0 (compatible; yar/1.0; +https://github.com/dotcommander/yar)",
			WordWrap:         80,
			LogLevel:         "warn",
			LogFormat:        "text",
			MCPTimeout:       15 * time.Second,
		},
	}
}
