package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"charm.land/fantasy"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/errs"
	"github.com/dotcommander/yar/internal/llm"
	"github.com/dotcommander/yar/internal/research"
	"github.com/dotcommander/yar/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.CachePath = t.TempDir()
	cfg.APIs = config.APIs{
		{
			Name:   "openai",
			APIKey: "test-key",
			Models: map[string]config.Model{
				"gpt-4o":      {Aliases: []string{"4o"}, MaxChars: 80000, Fallback: "gpt-4o-mini"},
				"gpt-4o-mini": {Aliases: []string{"4o-mini"}},
			},
		},
		{
			Name:    "ollama",
			BaseURL: "http://localhost:11434/v1",
			Models:  map[string]config.Model{"llama3.2": {Aliases: []string{"llama"}}},
		},
	}
	return &cfg
}

func TestNewClientRouting(t *testing.T) {
	for name, cfg := range map[string]llm.Config{
		"azure":             {API: "azure", APIKey: "token", BaseURL: "https://example.openai.azure.com"},
		"openai":            {API: "openai"},
		"openai-compatible": {API: "deepseek", BaseURL: "https://api.deepseek.com"},
		"openrouter":        {API: "openrouter", APIKey: "token"},
		"vercel":            {API: "vercel", APIKey: "token"},
		"ollama":            {API: "ollama", BaseURL: "http://localhost:11434/v1"},
	} {
		t.Run(name, func(t *testing.T) {
			client, err := NewClient(cfg)
			require.NoError(t, err)
			require.NotNil(t, client)
		})
	}

	t.Run("missing provider config", func(t *testing.T) {
		client, err := NewClient(llm.Config{})
		require.Error(t, err)
		require.Nil(t, client)
	})
}

func TestApplyProxyConfig(t *testing.T) {
	providerCfg := llm.Config{}
	require.NoError(t, ApplyProxyConfig("http://127.0.0.1:8080", &providerCfg))
	require.NotNil(t, providerCfg.HTTPClient)

	client, err := HTTPClient("")
	require.NoError(t, err)
	require.NotNil(t, client)

	_, err = HTTPClient("://bad")
	_, hasReason := errs.ReasonOf(err)
	require.True(t, hasReason)
}

func TestResolveModel(t *testing.T) {
	cfg := testConfig(t)

	api, mod, err := resolveModel(cfg.APIs, "openai", "4o")
	require.NoError(t, err)
	require.Equal(t, "openai", api.Name)
	require.Equal(t, "gpt-4o", mod.Name)
	require.Equal(t, "openai", mod.API)

	_, mod, err = resolveModel(cfg.APIs, "", "llama")
	require.NoError(t, err)
	require.Equal(t, "llama3.2", mod.Name)
	require.Equal(t, "ollama", mod.API)

	_, _, err = resolveModel(cfg.APIs, "openai", "llama")
	var e errs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "The API endpoint openai does not contain the model llama", e.Reason)

	_, _, err = resolveModel(cfg.APIs, "", "mystery")
	require.ErrorAs(t, err, &e)
	require.Equal(t, "Model mystery is not in the settings file.", e.Reason)
}

func TestContentBudget(t *testing.T) {
	require.Equal(t, 20000, ContentBudget(20000, 7, 0))
	require.Equal(t, 10000, ContentBudget(20000, 7, 80000))
	require.Equal(t, 20000, ContentBudget(20000, 7, 3000000))
	require.Equal(t, 10000, ContentBudget(0, 7, 80000))
}

func TestRequest(t *testing.T) {
	cfg := testConfig(t)
	cfg.UseCachedReport = false
	svc := New(cfg, nil, nil)

	req := svc.Request("Fusion Energy", "abc")
	require.Equal(t, research.Request{
		Topic:          "Fusion Energy",
		RunID:          "abc",
		UseSearchCache: true,
		UseScrapeCache: true,
	}, req)

	cfg.Fresh = true
	req = svc.Request("Fusion Energy", "abc")
	require.False(t, req.UseSearchCache)
	require.False(t, req.UseScrapeCache)
	require.False(t, req.UseCachedReport)
}

func TestLLMRequest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Temperature = 0.3
	cfg.MaxTokens = 4096
	cfg.User = "alice"
	svc := New(cfg, nil, nil)

	req := svc.request(config.Model{Name: "gpt-4o"})
	require.Equal(t, "gpt-4o", req.Model)
	require.Equal(t, "alice", req.User)
	require.InDelta(t, 0.3, *req.Temperature, 0.0001)
	require.Nil(t, req.TopP)
	require.EqualValues(t, 4096, *req.MaxTokens)

	req = svc.request(config.Model{Name: "o1-mini"})
	require.Nil(t, req.MaxTokens)
}

func TestOpenStore(t *testing.T) {
	for _, backend := range []string{config.BackendSQLite, config.BackendFile, config.BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.CacheBackend = backend

			st, err := New(cfg, nil, nil).OpenStore()
			require.NoError(t, err)
			require.Equal(t, backend != config.BackendMemory, st.Persistent())
			require.NoError(t, store.Save(st, store.Reports, "fusion energy", "# Report"))
			require.NoError(t, st.Close())

			if backend == config.BackendMemory {
				return
			}
			st, err = New(cfg, nil, nil).OpenStore()
			require.NoError(t, err)
			t.Cleanup(func() { _ = st.Close() })
			report, ok, err := store.Load[string](st, store.Reports, "fusion energy")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "# Report", report)
		})
	}
}

func TestPipeline(t *testing.T) {
	t.Run("uses the injected factory for writer and selector", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Model = "4o"
		cfg.SearchModel = "llama"
		cfg.CacheBackend = config.BackendMemory

		var apis []string
		factory := func(c llm.Config) (*llm.Client, error) {
			apis = append(apis, c.API)
			return llm.New(c)
		}
		p, err := New(cfg, nil, nil, factory).Pipeline(context.Background())
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })

		require.NotNil(t, p.Orchestrator)
		require.Equal(t, "gpt-4o", p.Model.Name)
		require.Equal(t, "gpt-4o", cfg.Model)
		require.Equal(t, []string{"openai", "ollama"}, apis)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		cfg := testConfig(t)
		cfg.APIs[0].APIKey = ""

		_, err := New(cfg, nil, nil).Pipeline(context.Background())
		reason, ok := errs.ReasonOf(err)
		require.True(t, ok)
		require.Equal(t, "OpenAI authentication failed", reason)
	})

	t.Run("missing instructions file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Instructions = "file:///definitely/not/here.md"

		_, err := New(cfg, nil, nil).Pipeline(context.Background())
		reason, ok := errs.ReasonOf(err)
		require.True(t, ok)
		require.Equal(t, "Could not load writer instructions.", reason)
	})
}

func TestAPIKeyCmd(t *testing.T) {
	key, err := apiKey(context.Background(), config.API{APIKeyCmd: "echo  secret-key"})
	require.NoError(t, err)
	require.Equal(t, "secret-key", key)

	t.Setenv("YAR_TEST_KEY", "from-env")
	key, err = apiKey(context.Background(), config.API{APIKeyEnv: "YAR_TEST_KEY"})
	require.NoError(t, err)
	require.Equal(t, "from-env", key)
}

func TestReasonForError(t *testing.T) {
	cfg := testConfig(t)
	cfg.API, cfg.Model = "openai", "gpt-4o"
	svc := New(cfg, nil, nil)
	mod := config.Model{Name: "gpt-4o", API: "openai", Fallback: "gpt-4o-mini"}

	t.Run("keeps user errors", func(t *testing.T) {
		in := errs.Error{Err: errors.New("x"), Reason: "Already explained."}
		require.Equal(t, in, svc.ReasonForError(fmt.Errorf("wrapped: %w", in), mod))
	})

	t.Run("missing model suggests the fallback", func(t *testing.T) {
		e := svc.ReasonForError(&fantasy.ProviderError{StatusCode: http.StatusNotFound, Message: "model not found"}, mod)
		require.Equal(t, "Missing model 'gpt-4o' for API 'openai'.", e.Reason)
		require.Contains(t, e.Err.Error(), "gpt-4o-mini")
	})

	t.Run("context length", func(t *testing.T) {
		e := svc.ReasonForError(fmt.Errorf("%w: %w", research.ErrWriterFailure, &fantasy.ProviderError{
			StatusCode: http.StatusBadRequest,
			Message:    "This model's maximum context length is 128000 tokens (context_length_exceeded)",
		}), mod)
		require.Equal(t, "Maximum prompt size exceeded.", e.Reason)
	})

	t.Run("empty report", func(t *testing.T) {
		e := svc.ReasonForError(research.ErrEmptyReport, mod)
		require.Equal(t, "The openai model returned an empty report.", e.Reason)
	})

	t.Run("canceled", func(t *testing.T) {
		e := svc.ReasonForError(context.Canceled, mod)
		require.Equal(t, "Research canceled.", e.Reason)
	})

	t.Run("other errors", func(t *testing.T) {
		e := svc.ReasonForError(errors.New("connection reset"), mod)
		require.Equal(t, "There was a problem with the openai API request.", e.Reason)
	})
}
