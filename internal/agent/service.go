package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/errs"
	"github.com/dotcommander/yar/internal/llm"
	"github.com/dotcommander/yar/internal/mcp"
	"github.com/dotcommander/yar/internal/research"
	"github.com/dotcommander/yar/internal/scrape"
	"github.com/dotcommander/yar/internal/search"
	"github.com/dotcommander/yar/internal/storage"
	"github.com/dotcommander/yar/internal/storage/cache"
	"github.com/dotcommander/yar/internal/store"
	"github.com/dotcommander/yar/internal/writer"
)

// ClientFactory creates a language-model client.
type ClientFactory func(llm.Config) (*llm.Client, error)

// Service builds research pipelines from the configuration.
//
// It is UI-agnostic and can be used by both the TUI and headless commands.
type Service struct {
	cfg           *config.Config
	mcp           *mcp.Service
	logger        *slog.Logger
	clientFactory ClientFactory
}

// New creates an agent service.
func New(cfg *config.Config, logger *slog.Logger, mcpSvc *mcp.Service, factory ...ClientFactory) *Service {
	if mcpSvc == nil {
		mcpSvc = mcp.New(cfg)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f := NewClient
	if len(factory) > 0 && factory[0] != nil {
		f = factory[0]
	}
	return &Service{cfg: cfg, mcp: mcpSvc, logger: logger, clientFactory: f}
}

// Pipeline is a ready-to-run orchestrator and the resources behind it.
type Pipeline struct {
	Orchestrator *research.Orchestrator
	Store        *store.Store
	Model        config.Model
}

// Close releases the cache backend.
func (p *Pipeline) Close() error {
	return p.Store.Close()
}

// Pipeline resolves the models, opens the cache and wires the searcher,
// scraper and writer into an orchestrator.
func (s *Service) Pipeline(ctx context.Context) (*Pipeline, error) {
	cfg := s.cfg

	api, mod, err := resolveModel(cfg.APIs, cfg.API, cfg.Model)
	if err != nil {
		return nil, err
	}
	// Keep runtime cfg in sync with resolved model.
	cfg.API = mod.API
	cfg.Model = mod.Name

	writeClient, err := s.client(ctx, api, mod)
	if err != nil {
		return nil, err
	}
	httpClient, err := HTTPClient(cfg.HTTPProxy)
	if err != nil {
		return nil, err
	}

	searcher, err := s.searcher(ctx, httpClient, writeClient, mod)
	if err != nil {
		return nil, err
	}
	scraper := scrape.New(
		s.fetcher(httpClient),
		scrape.WithLimits(cfg.ScrapeMinChars, ContentBudget(cfg.ScrapeMaxChars, cfg.SearchPick, mod.MaxChars)),
		scrape.WithLogger(s.logger.With("component", "scrape")),
	)

	var instructions string
	if cfg.Instructions != "" {
		instructions, err = config.LoadMsg(ctx, cfg.Instructions)
		if err != nil {
			return nil, errs.Error{Err: err, Reason: "Could not load writer instructions."}
		}
	}
	w := writer.New(
		writer.ClientStreamer(writeClient),
		s.request(mod),
		writer.WithInstructions(instructions),
		writer.WithLogger(s.logger.With("component", "writer")),
	)

	st, err := s.OpenStore()
	if err != nil {
		return nil, err
	}

	retry := research.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.SearchAttempts
	retry.Backoff.InitialDelay = cfg.SearchBackoff

	orch := research.New(st, searcher, scraper, w,
		research.WithRetryPolicy(retry),
		research.WithScrapeConcurrency(cfg.ScrapeConcurrent),
		research.WithLogger(s.logger.With("component", "research")),
	)
	return &Pipeline{Orchestrator: orch, Store: st, Model: mod}, nil
}

// Request builds the orchestrator request for topic from the cache flags.
func (s *Service) Request(topic, runID string) research.Request {
	cfg := s.cfg
	req := research.Request{
		Topic:           topic,
		RunID:           runID,
		UseSearchCache:  cfg.UseSearchCache,
		UseScrapeCache:  cfg.UseScrapeCache,
		UseCachedReport: cfg.UseCachedReport,
	}
	if cfg.Fresh {
		req.UseSearchCache, req.UseScrapeCache, req.UseCachedReport = false, false, false
	}
	return req
}

// OpenStore opens the research cache on the configured backend.
func (s *Service) OpenStore() (*store.Store, error) {
	cfg := s.cfg
	switch cfg.CacheBackend {
	case config.BackendMemory:
		return store.New(nil), nil
	case config.BackendFile:
		c, err := cache.New(cfg.FileCachePath())
		if err != nil {
			return nil, errs.Error{Err: err, Reason: "Could not open the research cache."}
		}
		return store.New(c), nil
	default:
		db, err := storage.OpenSQLite(cfg.SQLitePath(), cfg.CacheTable)
		if err != nil {
			return nil, errs.Error{Err: err, Reason: "Could not open the research cache."}
		}
		return store.New(db), nil
	}
}

func (s *Service) searcher(ctx context.Context, httpClient *http.Client, writeClient *llm.Client, mod config.Model) (*search.Searcher, error) {
	cfg := s.cfg

	var engine search.Engine
	switch cfg.SearchEngine {
	case config.EngineRSS:
		engine = search.NewRSS(httpClient, cfg.RSSURL, cfg.UserAgent)
	case config.EngineMCP:
		engine = &search.MCP{Caller: s.mcp, Tool: cfg.MCPSearchTool}
	default:
		engine = &search.DuckDuckGo{Client: httpClient, Region: cfg.SearchRegion, UserAgent: cfg.UserAgent}
	}

	selector, selectMod := writeClient, mod
	if cfg.SearchModel != "" && cfg.SearchModel != mod.Name && !slices.Contains(mod.Aliases, cfg.SearchModel) {
		api, smod, err := resolveModel(cfg.APIs, "", cfg.SearchModel)
		if err != nil {
			return nil, err
		}
		selector, err = s.client(ctx, api, smod)
		if err != nil {
			return nil, err
		}
		selectMod = smod
	}

	return search.New(engine,
		search.WithSelector(selector, s.request(selectMod)),
		search.WithLimits(cfg.SearchResults, cfg.SearchPick),
		search.WithLogger(s.logger.With("component", "search", "engine", engine.Name())),
	), nil
}

func (s *Service) fetcher(httpClient *http.Client) scrape.Fetcher {
	cfg := s.cfg
	if cfg.Fetcher == config.FetcherMCP {
		return &scrape.MCPFetcher{Caller: s.mcp, Tool: cfg.MCPFetchTool}
	}
	return &scrape.HTTPFetcher{Client: httpClient, Timeout: cfg.ScrapeTimeout, UserAgent: cfg.UserAgent}
}

func (s *Service) request(mod config.Model) llm.Request {
	cfg := s.cfg
	req := llm.Request{Model: mod.Name, User: cfg.User}
	if cfg.Temperature >= 0 {
		v := cfg.Temperature
		req.Temperature = &v
	}
	if cfg.TopP >= 0 {
		v := cfg.TopP
		req.TopP = &v
	}
	if cfg.TopK >= 0 {
		v := cfg.TopK
		req.TopK = &v
	}
	// o1 models do not accept max_tokens.
	if cfg.MaxTokens > 0 && !strings.HasPrefix(mod.Name, "o1") {
		v := cfg.MaxTokens
		req.MaxTokens = &v
	}
	if cfg.MaxCompletionTokens > 0 {
		v := cfg.MaxCompletionTokens
		req.MaxCompletionTokens = &v
	}
	return req
}

func (s *Service) client(ctx context.Context, api config.API, mod config.Model) (*llm.Client, error) {
	providerCfg, err := prepareProviderConfig(ctx, mod, api, s.cfg)
	if err != nil {
		return nil, err
	}
	if err := ApplyProxyConfig(s.cfg.HTTPProxy, &providerCfg); err != nil {
		return nil, err
	}
	providerCfg.Logger = s.logger.With("component", "llm", "api", mod.API)
	return s.clientFactory(providerCfg)
}

// ContentBudget caps per-article text so that pick articles fit the model's
// input limit. A zero model limit leaves maxChars alone.
func ContentBudget(maxChars, pick int, modelMaxChars int64) int {
	if modelMaxChars <= 0 || pick <= 0 {
		return maxChars
	}
	// Leave one share for the prompt and the template.
	budget := int(modelMaxChars / int64(pick+1))
	if maxChars <= 0 || budget < maxChars {
		return budget
	}
	return maxChars
}

func resolveModel(apis config.APIs, apiName, model string) (config.API, config.Model, error) {
	for _, api := range apis {
		if api.Name != apiName && apiName != "" {
			continue
		}
		name := model
		for n, mod := range api.Models {
			if n == model || slices.Contains(mod.Aliases, model) {
				name = n
				break
			}
		}
		mod, ok := api.Models[name]
		if ok {
			mod.Name = name
			mod.API = api.Name
			return api, mod, nil
		}
		if apiName != "" {
			available := make([]string, 0, len(api.Models))
			for n := range api.Models {
				available = append(available, n)
			}
			slices.Sort(available)
			return config.API{}, config.Model{}, errs.Error{
				Err:    errs.UserErrorf("Available models are: %s", strings.Join(available, ", ")),
				Reason: fmt.Sprintf("The API endpoint %s does not contain the model %s", apiName, model),
			}
		}
	}

	return config.API{}, config.Model{}, errs.Error{
		Reason: fmt.Sprintf("Model %s is not in the settings file.", model),
		Err:    errs.UserErrorf("Please specify an API endpoint with --api or configure the model in the settings: yar config edit"),
	}
}

func prepareProviderConfig(ctx context.Context, mod config.Model, api config.API, cfg *config.Config) (llm.Config, error) {
	switch mod.API {
	case "openrouter":
		key, err := ensureKey(ctx, api, "OPENROUTER_API_KEY", "https://openrouter.ai/keys")
		if err != nil {
			return llm.Config{}, errs.Error{Err: err, Reason: "OpenRouter authentication failed"}
		}
		return llm.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "vercel":
		key, err := ensureKey(ctx, api, "VERCEL_API_KEY", "https://vercel.com/dashboard/tokens")
		if err != nil {
			return llm.Config{}, errs.Error{Err: err, Reason: "Vercel AI Gateway authentication failed"}
		}
		return llm.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "bedrock":
		key, err := apiKey(ctx, api)
		if err != nil {
			return llm.Config{}, errs.Error{Err: err, Reason: "Bedrock authentication failed"}
		}
		return llm.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "ollama":
		baseURL := api.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return llm.Config{API: mod.API, BaseURL: baseURL}, nil
	case "azure", "azure-ad":
		key, err := ensureKey(ctx, api, "AZURE_OPENAI_KEY", "https://aka.ms/oai/access")
		if err != nil {
			return llm.Config{}, errs.Error{Err: err, Reason: "Azure authentication failed"}
		}
		if api.User != "" {
			cfg.User = api.User
		}
		return llm.Config{API: "azure", APIKey: key, BaseURL: api.BaseURL}, nil
	case "anthropic":
		key, err := ensureKey(ctx, api, "ANTHROPIC_API_KEY", "https://console.anthropic.com/settings/keys")
		if err != nil {
			return llm.Config{}, errs.Error{Err: err, Reason: "Anthropic authentication failed"}
		}
		return llm.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "google":
		key, err := ensureKey(ctx, api, "GOOGLE_API_KEY", "https://aistudio.google.com/app/apikey")
		if err != nil {
			return llm.Config{}, errs.Error{Err: err, Reason: "Google authentication failed"}
		}
		return llm.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL, ThinkingBudget: mod.ThinkingBudget}, nil
	default:
		key, err := ensureKey(ctx, api, "OPENAI_API_KEY", "https://platform.openai.com/account/api-keys")
		if err != nil {
			return llm.Config{}, errs.Error{Err: err, Reason: "OpenAI authentication failed"}
		}
		return llm.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	}
}

// HTTPClient returns the client used for search and page requests.
func HTTPClient(httpProxy string) (*http.Client, error) {
	if httpProxy == "" {
		return &http.Client{Timeout: time.Minute}, nil
	}
	var providerCfg llm.Config
	if err := ApplyProxyConfig(httpProxy, &providerCfg); err != nil {
		return nil, err
	}
	return providerCfg.HTTPClient, nil
}

// ApplyProxyConfig configures the provider HTTP client to use an HTTP proxy.
func ApplyProxyConfig(httpProxy string, providerCfg *llm.Config) error {
	if httpProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	providerCfg.HTTPClient = &http.Client{Transport: tr}
	return nil
}

// NewClient creates the language-model client.
func NewClient(cfg llm.Config) (*llm.Client, error) {
	if cfg.API == "" {
		return nil, errs.Error{Reason: "missing provider configuration"}
	}
	client, err := llm.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("new llm client: %w", err)
	}
	return client, nil
}

func ensureKey(ctx context.Context, api config.API, defaultEnv, docsURL string) (string, error) {
	key, err := apiKey(ctx, api)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = os.Getenv(defaultEnv)
	}
	if key != "" {
		return key, nil
	}
	return "", errs.Error{
		Reason: fmt.Sprintf("%s required; set %s or update yar.yml through yar config edit.", defaultEnv, defaultEnv),
		Err:    errs.UserErrorf("You can grab one at %s", docsURL),
	}
}

// apiKey reads the key from api-key, api-key-env or api-key-cmd, in that
// order. It returns an empty key when none is configured.
func apiKey(ctx context.Context, api config.API) (string, error) {
	key := api.APIKey
	if key == "" && api.APIKeyEnv != "" && api.APIKeyCmd == "" {
		key = os.Getenv(api.APIKeyEnv)
	}
	if key == "" && api.APIKeyCmd != "" {
		args, err := shellwords.Parse(api.APIKeyCmd)
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Failed to parse api-key-cmd"}
		}
		if len(args) == 0 {
			return "", errs.Error{Reason: "api-key-cmd is empty"}
		}
		// #nosec G204 -- api-key-cmd is explicitly configured by the local user.
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Cannot exec api-key-cmd"}
		}
		key = strings.TrimSpace(string(out))
	}
	return key, nil
}
