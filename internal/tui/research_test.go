package tui

import (
	"context"
	"errors"
	"io"
	"iter"
	"slices"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/research"
)

func newTestResearch(t *testing.T, raw bool, events ...research.Event) *Research {
	t.Helper()
	cfg := &config.Config{Settings: config.Settings{WordWrap: 80, Raw: raw, Theme: "notty"}}
	m := NewResearch(context.Background(), lipgloss.NewRenderer(io.Discard), cfg, "fusion energy", replay(events...))
	t.Cleanup(m.Close)
	m.width, m.height = 100, 40
	return m
}

func replay(events ...research.Event) func(context.Context) iter.Seq[research.Event] {
	return func(context.Context) iter.Seq[research.Event] { return slices.Values(events) }
}

// drive feeds every event into the model until it asks to quit.
func drive(t *testing.T, m *Research) {
	t.Helper()
	for range 100 {
		msg := m.receiveEventCmd()()
		_, cmd := m.Update(msg)
		if m.state == doneState {
			require.NotNil(t, cmd)
			return
		}
	}
	t.Fatal("model never finished")
}

func TestResearchCompleted(t *testing.T) {
	m := newTestResearch(t, false,
		research.Event{Type: research.EventProgress, Stage: research.StageSearch, Text: "Searching the web"},
		research.Event{Type: research.EventProgress, Stage: research.StageScrape, Text: "Reading 2 articles", Cached: true},
		research.Event{Type: research.EventPartialText, Stage: research.StageWrite, Text: "# Fusion\n\n"},
		research.Event{Type: research.EventPartialText, Stage: research.StageWrite, Text: "Progress is steady."},
		research.Event{Type: research.EventCompleted, Stage: research.StageWrite, Text: "# Fusion\n\nProgress is steady."},
	)
	drive(t, m)

	require.Equal(t, research.EventCompleted, m.Final.Type)
	require.Equal(t, "# Fusion\n\nProgress is steady.", m.Output)
	require.Equal(t, []string{
		"search: Searching the web",
		"scrape: Reading 2 articles",
		"write: Writing the report",
	}, m.Stages())
	require.True(t, m.stages[0].done)
	require.True(t, m.stages[1].cached)
	require.Contains(t, m.GlamourOutput(), "Progress is steady.")
	require.Empty(t, m.View())
}

func TestResearchCachedReport(t *testing.T) {
	m := newTestResearch(t, false,
		research.Event{Type: research.EventCompleted, Stage: research.StageReport, Text: "cached report", Cached: true},
	)
	drive(t, m)
	require.True(t, m.Final.Cached)
	require.Equal(t, "cached report", m.Output)
}

func TestResearchEmpty(t *testing.T) {
	m := newTestResearch(t, false,
		research.Event{Type: research.EventProgress, Stage: research.StageSearch, Text: "Searching the web"},
		research.Event{Type: research.EventCompletedEmpty, Stage: research.StageSearch, Text: research.NoArticlesMessage("fusion energy")},
	)
	drive(t, m)
	require.Equal(t, research.EventCompletedEmpty, m.Final.Type)
	require.Empty(t, m.Output)
	require.Empty(t, m.GlamourOutput())
}

func TestResearchFailed(t *testing.T) {
	boom := errors.New("boom")
	m := newTestResearch(t, false, research.Event{Type: research.EventFailed, Stage: research.StageWrite, Err: boom})
	drive(t, m)
	require.ErrorIs(t, m.Final.Err, boom)
}

func TestResearchRawSkipsRendering(t *testing.T) {
	m := newTestResearch(t, true,
		research.Event{Type: research.EventPartialText, Stage: research.StageWrite, Text: "# Fusion"},
		research.Event{Type: research.EventCompleted, Stage: research.StageWrite, Text: "# Fusion"},
	)
	drive(t, m)
	require.Equal(t, "# Fusion", m.Output)
	require.Empty(t, m.GlamourOutput())
}

func TestResearchCancel(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		t.Run(key.String(), func(t *testing.T) {
			var runCtx context.Context
			returned := make(chan struct{})
			start := func(ctx context.Context) iter.Seq[research.Event] {
				runCtx = ctx
				return func(yield func(research.Event) bool) {
					defer close(returned)
					if !yield(research.Event{Type: research.EventProgress, Stage: research.StageSearch, Text: "Searching the web"}) {
						return
					}
					// A search that only stops when its context does.
					<-ctx.Done()
				}
			}
			cfg := &config.Config{Settings: config.Settings{WordWrap: 80}}
			m := NewResearch(context.Background(), lipgloss.NewRenderer(io.Discard), cfg, "fusion", start)

			_, _ = m.Update(m.receiveEventCmd()())
			require.Contains(t, m.View(), "Searching the web")
			require.NoError(t, runCtx.Err())

			_, cmd := m.Update(key)
			require.NotNil(t, cmd)
			require.Equal(t, doneState, m.state)
			require.ErrorIs(t, m.Final.Err, context.Canceled)
			require.Equal(t, research.StageSearch, m.Final.Stage)
			require.ErrorIs(t, runCtx.Err(), context.Canceled)

			m.Close()
			select {
			case <-returned:
			default:
				t.Fatal("run still going after Close")
			}
		})
	}
}

func TestResearchChannelClosed(t *testing.T) {
	m := newTestResearch(t, false)
	_, cmd := m.Update(m.receiveEventCmd()())
	require.NotNil(t, cmd)
	require.Equal(t, doneState, m.state)
	require.Empty(t, m.Final.Type)
}
