package tui

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/present"
	"github.com/dotcommander/yar/internal/research"
)

type state int

const (
	runningState state = iota
	writingState
	doneState
)

// Research is the Bubble Tea model that shows pipeline progress and renders
// the report while it streams in.
type Research struct {
	// Output is the final report, set on a completed run.
	Output string
	// Final is the terminal event of the run.
	Final  research.Event
	Styles present.Styles

	state    state
	topic    string
	cfg      *config.Config
	renderer *lipgloss.Renderer
	glam     *glamour.TermRenderer
	viewport viewport.Model
	spinner  spinner.Model
	stages   []stageStatus
	events   <-chan research.Event
	drained  <-chan struct{}
	cancel   context.CancelFunc

	outputBuf       strings.Builder
	glamOutput      string
	glamHeight      int
	width           int
	height          int
	renderScheduled bool
	dirtyOutput     bool
}

type stageStatus struct {
	stage  research.Stage
	text   string
	cached bool
	done   bool
}

// NewResearch creates the model for one run. start is called once with a
// context the model cancels when the user quits; the sequence it returns is
// drained on a separate goroutine.
func NewResearch(
	ctx context.Context,
	r *lipgloss.Renderer,
	cfg *config.Config,
	topic string,
	start func(context.Context) iter.Seq[research.Event],
) *Research {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(cfg.WordWrap)}
	if cfg.Theme != "" {
		opts = append(opts, glamour.WithStandardStyle(cfg.Theme))
	} else {
		opts = append(opts, glamour.WithEnvironmentConfig())
	}
	gr, _ := glamour.NewTermRenderer(opts...)

	styles := present.MakeStyles(r)
	vp := viewport.New(0, 0)
	vp.GotoBottom()

	ctx, cancel := context.WithCancel(ctx)
	events, drained := pump(ctx, start(ctx))
	return &Research{
		Styles:   styles,
		state:    runningState,
		topic:    topic,
		cfg:      cfg,
		renderer: r,
		glam:     gr,
		viewport: vp,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(styles.CyclingChars),
		),
		events:  events,
		drained: drained,
		cancel:  cancel,
	}
}

// pump forwards events to a channel. drained is closed once the sequence has
// returned.
func pump(ctx context.Context, events iter.Seq[research.Event]) (ch <-chan research.Event, drained <-chan struct{}) {
	out := make(chan research.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for e := range events {
			select {
			case <-ctx.Done():
				return
			case out <- e:
			}
		}
	}()
	return out, done
}

type eventMsg struct {
	event research.Event
	ok    bool
}

type renderOutputMsg struct{}

// Init implements tea.Model.
func (m *Research) Init() tea.Cmd {
	return tea.Batch(m.receiveEventCmd(), m.spinner.Tick)
}

// Update implements tea.Model.
func (m *Research) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case eventMsg:
		if !msg.ok {
			m.state = doneState
			return m, tea.Quit
		}
		if msg.event.Terminal() {
			m.finish(msg.event)
			return m, tea.Quit
		}
		m.handleEvent(msg.event)
		if m.shouldRender() && m.dirtyOutput && !m.renderScheduled {
			m.renderScheduled = true
			cmds = append(cmds, renderOutputCmd())
		}
		cmds = append(cmds, m.receiveEventCmd())

	case renderOutputMsg:
		m.renderScheduled = false
		if m.dirtyOutput {
			m.renderFormattedOutput()
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = m.width
		m.viewport.Height = m.height
		if m.shouldRender() && m.outputBuf.Len() > 0 {
			m.renderFormattedOutput()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			m.finish(research.Event{Type: research.EventFailed, Stage: m.currentStage(), Err: context.Canceled})
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.state == runningState {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if m.viewportNeeded() {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m *Research) View() string {
	switch m.state {
	case runningState:
		return m.progressView()
	case writingState:
		if !m.shouldRender() {
			return m.progressView()
		}
		if m.viewportNeeded() {
			return m.viewport.View()
		}
		return m.glamOutput
	default:
		return ""
	}
}

// Close cancels the run and waits until the event sequence has returned.
func (m *Research) Close() {
	m.cancel()
	<-m.drained
}

func (m *Research) receiveEventCmd() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		return eventMsg{event: e, ok: ok}
	}
}

func (m *Research) handleEvent(e research.Event) {
	switch e.Type {
	case research.EventProgress:
		m.progress(e)
	case research.EventPartialText:
		if m.currentStage() != research.StageWrite {
			m.progress(research.Event{Stage: research.StageWrite, Text: "Writing the report"})
		}
		m.state = writingState
		m.outputBuf.WriteString(e.Text)
		m.dirtyOutput = true
	}
}

func (m *Research) progress(e research.Event) {
	for i := range m.stages {
		if m.stages[i].stage == e.Stage {
			m.stages[i].text = e.Text
			m.stages[i].cached = m.stages[i].cached || e.Cached
			return
		}
		m.stages[i].done = true
	}
	m.stages = append(m.stages, stageStatus{stage: e.Stage, text: e.Text, cached: e.Cached})
}

func (m *Research) finish(e research.Event) {
	m.Final = e
	m.state = doneState
	if e.Type == research.EventCompleted {
		m.Output = e.Text
	}
}

func (m *Research) currentStage() research.Stage {
	if len(m.stages) == 0 {
		return research.StageReport
	}
	return m.stages[len(m.stages)-1].stage
}

func (m *Research) progressView() string {
	var sb strings.Builder
	name := m.Styles.AppName.Render("yar")
	if m.renderer.ColorProfile() == termenv.TrueColor {
		name = present.MakeGradientText(m.Styles.AppName, "yar")
	}
	fmt.Fprintf(&sb, "%s %s\n\n", name, m.Styles.Quote.Render(fmt.Sprintf("%q", m.topic)))
	for _, s := range m.stages {
		line := m.Styles.Stage.Render(s.text)
		if s.cached {
			line += " " + m.Styles.Cached.Render("(cached)")
		}
		if s.done {
			fmt.Fprintf(&sb, "%s %s\n", m.Styles.StageDone.Render("✓"), line)
			continue
		}
		fmt.Fprintf(&sb, "%s %s\n", m.spinner.View(), line)
	}
	if len(m.stages) == 0 {
		fmt.Fprintf(&sb, "%s %s\n", m.spinner.View(), m.Styles.Stage.Render("Starting"))
	}
	return sb.String()
}

func (m *Research) viewportNeeded() bool {
	return m.state == writingState && m.glamHeight > m.height
}

func (m *Research) shouldRender() bool {
	return !m.cfg.Raw && m.glam != nil
}

const tabWidth = 4

func renderOutputCmd() tea.Cmd {
	const renderInterval = 33 * time.Millisecond
	return tea.Tick(renderInterval, func(time.Time) tea.Msg {
		return renderOutputMsg{}
	})
}

func (m *Research) renderFormattedOutput() {
	wasAtBottom := m.viewport.ScrollPercent() == 1.0
	oldHeight := m.glamHeight
	m.glamOutput, _ = m.glam.Render(m.outputBuf.String())
	m.glamOutput = strings.TrimRightFunc(m.glamOutput, unicode.IsSpace)
	m.glamOutput = strings.ReplaceAll(m.glamOutput, "\t", strings.Repeat(" ", tabWidth))
	m.glamHeight = lipgloss.Height(m.glamOutput)
	m.glamOutput += "\n"
	truncated := m.renderer.NewStyle().
		MaxWidth(m.width).
		Render(m.glamOutput)
	m.viewport.SetContent(truncated)
	if oldHeight < m.glamHeight && wasAtBottom {
		// Follow the output while the reader is at the bottom.
		m.viewport.GotoBottom()
	}
	m.dirtyOutput = false
}
