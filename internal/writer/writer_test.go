package writer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/exp/golden"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/yar/internal/llm"
	"github.com/dotcommander/yar/internal/research"
)

var fusionArticles = map[string]research.ScrapedArticle{
	"https://www.nature.com/articles/fusion": {
		Title:   "Fusion ignition, one year on",
		URL:     "https://www.nature.com/articles/fusion",
		Summary: "A review of the NIF results.",
		Content: "# Fusion ignition\n\nThe shot released 3.15 MJ.",
	},
	"https://www.iter.org/newsline": {
		Title:   "ITER newsline",
		URL:     "https://www.iter.org/newsline",
		Content: "Assembly of the tokamak continues.",
	},
}

func TestInput(t *testing.T) {
	input, err := Input("fusion energy", fusionArticles)
	require.NoError(t, err)
	golden.RequireEqual(t, []byte(input))
}

func TestSystemPrompt(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC) }

	t.Run("default instructions", func(t *testing.T) {
		prompt := New(nil, llm.Request{}, WithClock(clock)).SystemPrompt()
		require.True(t, strings.HasPrefix(prompt, "You are Professor X-2000"))
		require.Contains(t, prompt, "Cross-reference findings across sources")
		require.Contains(t, prompt, "## Key Takeaways")
		require.True(t, strings.HasSuffix(prompt, "Date: March 4, 2026"))
	})

	t.Run("custom instructions", func(t *testing.T) {
		prompt := New(nil, llm.Request{}, WithClock(clock), WithInstructions("Write for policy makers.")).SystemPrompt()
		require.Contains(t, prompt, "Write for policy makers.")
		require.NotContains(t, prompt, "Cross-reference findings")
		require.Contains(t, prompt, "## Executive Summary")
	})

	t.Run("blank instructions keep the default", func(t *testing.T) {
		prompt := New(nil, llm.Request{}, WithInstructions("  ")).SystemPrompt()
		require.Contains(t, prompt, "Cross-reference findings")
	})
}

type fakeStream struct {
	parts  []string
	i      int
	err    error
	closed bool
}

func (s *fakeStream) Next() bool {
	if s.err != nil || s.i >= len(s.parts) {
		return false
	}
	s.i++
	return true
}
func (s *fakeStream) Current() string { return s.parts[s.i-1] }
func (s *fakeStream) Err() error      { return s.err }
func (s *fakeStream) Close() error    { s.closed = true; return nil }

func TestWrite(t *testing.T) {
	var got llm.Request
	stream := &fakeStream{parts: []string{"# Fusion", " report"}}
	w := New(func(_ context.Context, req llm.Request) research.TextStream {
		got = req
		return stream
	}, llm.Request{Model: "gpt-4o", User: "alice"})

	out, err := w.Write(context.Background(), "fusion energy", fusionArticles)
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", got.Model)
	require.Equal(t, "alice", got.User)
	require.Len(t, got.Messages, 2)
	require.Equal(t, llm.RoleSystem, got.Messages[0].Role)
	require.Equal(t, llm.RoleUser, got.Messages[1].Role)
	require.Contains(t, got.Messages[1].Content, `"topic": "fusion energy"`)

	var sb strings.Builder
	for out.Next() {
		sb.WriteString(out.Current())
	}
	require.NoError(t, out.Err())
	require.Equal(t, "# Fusion report", sb.String())
}

func TestWriteStartFailure(t *testing.T) {
	boom := errors.New("401 unauthorized")
	stream := &fakeStream{err: boom}
	w := New(func(context.Context, llm.Request) research.TextStream { return stream }, llm.Request{})

	_, err := w.Write(context.Background(), "fusion energy", fusionArticles)
	require.ErrorIs(t, err, boom)
	require.True(t, stream.closed)
}

type warningFakeStream struct {
	fakeStream
	warnings []string
}

func (s *warningFakeStream) DrainWarnings() []string {
	w := s.warnings
	s.warnings = nil
	return w
}

func TestWriteLogsProviderWarnings(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	stream := &warningFakeStream{
		fakeStream: fakeStream{parts: []string{"# Fusion"}},
		warnings:   []string{"unsupported setting: top_k"},
	}
	w := New(func(context.Context, llm.Request) research.TextStream { return stream }, llm.Request{Model: "gpt-4o"}, WithLogger(logger))

	out, err := w.Write(context.Background(), "fusion energy", fusionArticles)
	require.NoError(t, err)
	for out.Next() {
		_ = out.Current()
	}
	require.NoError(t, out.Err())
	require.Equal(t, 1, strings.Count(logs.String(), "provider warning: unsupported setting: top_k"))
	require.Contains(t, logs.String(), "model=gpt-4o")
}
