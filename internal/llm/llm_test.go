//go:build !yar_small

package llm

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/stretchr/testify/require"
)

func TestBuildCallGoogleThinkingBudget(t *testing.T) {
	s := &Stream{api: "google", config: Config{ThinkingBudget: 256}}

	call := s.buildCall()

	v, ok := call.ProviderOptions[google.Name]
	require.True(t, ok)
	opts, ok := v.(*google.ProviderOptions)
	require.True(t, ok)
	require.NotNil(t, opts.ThinkingConfig)
	require.NotNil(t, opts.ThinkingConfig.ThinkingBudget)
	require.EqualValues(t, 256, *opts.ThinkingConfig.ThinkingBudget)
}

func TestBuildCallOpenAIIgnoresThinkingBudget(t *testing.T) {
	s := &Stream{api: "openai", config: Config{ThinkingBudget: 512}}
	require.Empty(t, s.buildCall().ProviderOptions)
}

func TestBuildCallPrompt(t *testing.T) {
	s := &Stream{
		api: "openai",
		request: Request{Messages: []Message{
			{Role: RoleSystem, Content: "you write reports"},
			{Role: RoleUser, Content: "fusion energy"},
			{Role: RoleAssistant, Content: ""},
		}},
	}

	call := s.buildCall()
	require.Len(t, call.Prompt, 2)
	require.Equal(t, fantasy.MessageRoleSystem, call.Prompt[0].Role)
	require.Equal(t, fantasy.MessageRoleUser, call.Prompt[1].Role)
}

func TestNewAzureADProviderAlias(t *testing.T) {
	client, err := New(Config{
		API:     "azure-ad",
		APIKey:  "token",
		BaseURL: "https://example.openai.azure.com",
	})
	require.NoError(t, err)
	require.Equal(t, "azure-ad", client.API())
}

func TestBuildCallUserProviderOptions(t *testing.T) {
	for _, api := range []string{"openai", "azure"} {
		t.Run(api, func(t *testing.T) {
			s := &Stream{api: api, request: Request{User: "alice"}}

			v, ok := s.buildCall().ProviderOptions[fopenai.Name]
			require.True(t, ok)
			opts, ok := v.(*fopenai.ProviderOptions)
			require.True(t, ok)
			require.NotNil(t, opts.User)
			require.Equal(t, "alice", *opts.User)
		})
	}

	t.Run("openai-compatible", func(t *testing.T) {
		s := &Stream{api: "ollama", request: Request{User: "bob"}}

		v, ok := s.buildCall().ProviderOptions[fopenaicompat.Name]
		require.True(t, ok)
		opts, ok := v.(*fopenaicompat.ProviderOptions)
		require.True(t, ok)
		require.Equal(t, "bob", *opts.User)
	})

	t.Run("google", func(t *testing.T) {
		s := &Stream{api: "google", request: Request{User: "carol"}}
		require.Empty(t, s.buildCall().ProviderOptions)
	})
}

func TestBuildCallMaxCompletionTokens(t *testing.T) {
	tokens := int64(321)

	t.Run("openai", func(t *testing.T) {
		s := &Stream{api: "openai", request: Request{MaxCompletionTokens: &tokens}}

		v, ok := s.buildCall().ProviderOptions[fopenai.Name]
		require.True(t, ok)
		opts, ok := v.(*fopenai.ProviderOptions)
		require.True(t, ok)
		require.Nil(t, opts.User)
		require.EqualValues(t, 321, *opts.MaxCompletionTokens)
	})

	t.Run("openai-compatible", func(t *testing.T) {
		s := &Stream{api: "ollama", request: Request{MaxCompletionTokens: &tokens}}
		require.Empty(t, s.buildCall().ProviderOptions)
	})
}

func testStream(parts ...fantasy.StreamPart) *Stream {
	ch := make(chan fantasy.StreamPart, len(parts))
	for _, p := range parts {
		ch <- p
	}
	close(ch)
	ctx, cancel := context.WithCancel(context.Background())
	return &Stream{ctx: ctx, cancel: cancel, partCh: ch, warningSeen: map[string]struct{}{}}
}

func TestStreamNext(t *testing.T) {
	t.Run("text deltas", func(t *testing.T) {
		s := testStream(
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "# Fusion"},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: ""},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: " energy"},
		)
		defer s.Close() //nolint:errcheck

		var got []string
		for s.Next() {
			got = append(got, s.Current())
		}
		require.NoError(t, s.Err())
		require.Equal(t, []string{"# Fusion", " energy"}, got)
	})

	t.Run("error part stops the stream", func(t *testing.T) {
		boom := errors.New("boom")
		s := testStream(
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "a"},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeError, Error: boom},
			fantasy.StreamPart{Type: fantasy.StreamPartTypeTextDelta, Delta: "b"},
		)

		require.True(t, s.Next())
		require.False(t, s.Next())
		require.ErrorIs(t, s.Err(), boom)
	})

	t.Run("canceled", func(t *testing.T) {
		s := testStream()
		require.NoError(t, s.Close())
		require.False(t, s.Next())
		require.ErrorIs(t, s.Err(), context.Canceled)
	})
}

func TestDrainWarningsDeduplicates(t *testing.T) {
	s := &Stream{warningSeen: map[string]struct{}{}}

	s.consumePart(fantasy.StreamPart{
		Type: fantasy.StreamPartTypeWarnings,
		Warnings: []fantasy.CallWarning{
			{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_k", Message: "unsupported setting: top_k"},
			{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_k", Message: "unsupported setting: top_k"},
			{Type: fantasy.CallWarningTypeUnsupportedSetting, Setting: "top_p"},
		},
	})

	require.Equal(t, []string{"unsupported setting: top_k", "unsupported setting: top_p"}, s.DrainWarnings())
	require.Empty(t, s.DrainWarnings())
}

func TestLogWarnings(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	LogWarnings(logger, []string{"unsupported setting: top_k", "unsupported setting: top_p"}, "model", "gpt-4o")
	require.Contains(t, logs.String(), `level=WARN msg="provider warning: unsupported setting: top_k" model=gpt-4o`)
	require.Contains(t, logs.String(), `msg="provider warning: unsupported setting: top_p"`)

	require.NotPanics(t, func() { LogWarnings(nil, []string{"ignored"}) })
}
