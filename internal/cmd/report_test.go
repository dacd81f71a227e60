package cmd

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/errs"
	"github.com/dotcommander/yar/internal/present"
	"github.com/dotcommander/yar/internal/research"
	"github.com/dotcommander/yar/internal/storage"
)

var plainStyles = present.MakeStyles(lipgloss.NewRenderer(io.Discard))

func TestStreamReport(t *testing.T) {
	progress := research.Event{Type: research.EventProgress, Stage: research.StageSearch, Text: "Searching the web"}

	t.Run("streamed report", func(t *testing.T) {
		var out, status strings.Builder
		final := streamReport(&out, &status, plainStyles, slices.Values([]research.Event{
			progress,
			{Type: research.EventProgress, Stage: research.StageScrape, Text: "Found cached articles", Cached: true},
			{Type: research.EventPartialText, Text: "# Fusion\n"},
			{Type: research.EventPartialText, Text: "Net gain reached."},
			{Type: research.EventCompleted, Text: "# Fusion\nNet gain reached.", Articles: 3},
		}), false)

		require.Equal(t, research.EventCompleted, final.Type)
		require.Equal(t, 3, final.Articles)
		require.Equal(t, "# Fusion\nNet gain reached.\n", out.String())
		require.Contains(t, status.String(), "Searching the web\n")
		require.Contains(t, status.String(), "Found cached articles")
		require.Contains(t, status.String(), "(cached)")
	})

	t.Run("cached report is printed whole", func(t *testing.T) {
		var out, status strings.Builder
		final := streamReport(&out, &status, plainStyles, slices.Values([]research.Event{
			{Type: research.EventCompleted, Text: "cached report\n", Cached: true},
		}), false)
		require.True(t, final.Cached)
		require.Equal(t, "cached report\n", out.String())
		require.Empty(t, status.String())
	})

	t.Run("quiet hides progress", func(t *testing.T) {
		var out, status strings.Builder
		final := streamReport(&out, &status, plainStyles, slices.Values([]research.Event{
			progress,
			{Type: research.EventCompletedEmpty, Text: research.NoArticlesMessage("fusion")},
		}), true)
		require.Equal(t, research.EventCompletedEmpty, final.Type)
		require.Empty(t, out.String())
		require.Empty(t, status.String())
	})

	t.Run("failure after partial text ends the line", func(t *testing.T) {
		var out strings.Builder
		boom := errors.New("boom")
		final := streamReport(&out, io.Discard, plainStyles, slices.Values([]research.Event{
			{Type: research.EventPartialText, Text: "partial"},
			{Type: research.EventFailed, Err: boom},
		}), false)
		require.ErrorIs(t, final.Err, boom)
		require.Equal(t, "partial\n", out.String())
	})

	t.Run("sequence without a terminal event", func(t *testing.T) {
		final := streamReport(io.Discard, io.Discard, plainStyles, slices.Values([]research.Event{progress}), false)
		require.Equal(t, research.EventFailed, final.Type)
		require.ErrorIs(t, final.Err, context.Canceled)
	})
}

func TestRunRecord(t *testing.T) {
	mod := config.Model{Name: "gpt-4o", API: "openai"}
	for name, tc := range map[string]struct {
		event   research.Event
		outcome storage.Outcome
	}{
		"completed": {research.Event{Type: research.EventCompleted, Articles: 4}, storage.OutcomeCompleted},
		"cached":    {research.Event{Type: research.EventCompleted, Cached: true}, storage.OutcomeCached},
		"empty":     {research.Event{Type: research.EventCompletedEmpty}, storage.OutcomeEmpty},
		"failed":    {research.Event{Type: research.EventFailed}, storage.OutcomeFailed},
		"unset":     {research.Event{}, storage.OutcomeFailed},
	} {
		t.Run(name, func(t *testing.T) {
			run := runRecord("abc", "Fusion  Energy", tc.event, mod)
			require.Equal(t, tc.outcome, run.Outcome)
			require.Equal(t, storage.TopicKey("fusion energy"), run.Key)
			require.Equal(t, tc.event.Articles, run.Articles)
			require.Equal(t, "openai", run.API)
			require.Equal(t, "gpt-4o", run.Model)
		})
	}
}

func TestReadTopic(t *testing.T) {
	topic, err := readTopic(strings.NewReader("  state of\n fusion\tenergy \n"))
	require.NoError(t, err)
	require.Equal(t, "state of fusion energy", topic)

	topic, err = readTopic(strings.NewReader(strings.Repeat("a ", maxTopicBytes)))
	require.NoError(t, err)
	require.LessOrEqual(t, len(topic), maxTopicBytes)
}

func TestHandleError(t *testing.T) {
	t.Run("user facing error", func(t *testing.T) {
		var sb strings.Builder
		handleError(&sb, errs.Wrap(errors.New("dial tcp: refused"), "There was a problem with the openai API request."))
		require.Contains(t, sb.String(), "There was a problem with the openai API request.")
		require.Contains(t, sb.String(), "dial tcp: refused")
	})

	t.Run("canceled hides details", func(t *testing.T) {
		var sb strings.Builder
		handleError(&sb, errs.Wrap(context.Canceled, "Research canceled."))
		require.Contains(t, sb.String(), "Research canceled.")
		require.NotContains(t, sb.String(), "context canceled")
	})

	t.Run("flag error", func(t *testing.T) {
		var sb strings.Builder
		handleError(&sb, newFlagParseError(errors.New("unknown flag: --nope")))
		require.Contains(t, sb.String(), "yar -h")
		require.Contains(t, sb.String(), "--nope")
	})

	t.Run("plain error", func(t *testing.T) {
		var sb strings.Builder
		handleError(&sb, errors.New("boom"))
		require.Contains(t, sb.String(), "boom")
	})
}
