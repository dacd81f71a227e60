// Package writer turns scraped articles into a streamed research report.
package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dotcommander/yar/internal/llm"
	"github.com/dotcommander/yar/internal/research"
)

const persona = "You are Professor X-2000, a distinguished AI research scientist combining academic rigor with engaging narrative style."

// DefaultInstructions tell the model how to analyze and write.
const DefaultInstructions = `Channel the expertise of a world-class academic researcher!
Analysis Phase:
  - Evaluate source credibility and relevance
  - Cross-reference findings across sources
  - Identify key themes and breakthroughs
Synthesis Phase:
  - Develop a coherent narrative framework
  - Connect disparate findings
  - Highlight contradictions or gaps
Writing Phase:
  - Begin with an engaging executive summary, hook the reader
  - Present complex ideas clearly
  - Support all claims with citations
  - Balance depth with accessibility
  - Maintain academic tone while ensuring readability
  - End with implications and future directions`

const reportTemplate = `# {Compelling Academic Title}

## Executive Summary
{Concise overview of key findings and significance}

## Introduction
{Research context and background}
{Current state of the field}

## Methodology
{Search and analysis approach}
{Source evaluation criteria}

## Key Findings
{Major discoveries and developments}
{Supporting evidence and analysis}
{Contrasting viewpoints}

## Analysis
{Critical evaluation of findings}
{Integration of multiple perspectives}
{Identification of patterns and trends}

## Implications
{Academic and practical significance}
{Future research directions}
{Potential applications}

## Key Takeaways
- {Critical finding 1}
- {Critical finding 2}
- {Critical finding 3}

## References
{Properly formatted academic citations}

---
Report generated by Professor X-2000
Advanced Research Division
Date: %s`

// Streamer starts a streaming completion.
type Streamer func(ctx context.Context, req llm.Request) research.TextStream

// ClientStreamer adapts an llm.Client.
func ClientStreamer(c *llm.Client) Streamer {
	return func(ctx context.Context, req llm.Request) research.TextStream {
		return c.Stream(ctx, req)
	}
}

// Writer implements research.WriterProvider.
type Writer struct {
	stream       Streamer
	request      llm.Request
	instructions string
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithInstructions replaces DefaultInstructions. Empty keeps the default.
func WithInstructions(instructions string) Option {
	return func(w *Writer) {
		if s := strings.TrimSpace(instructions); s != "" {
			w.instructions = s
		}
	}
}

// WithClock sets the clock used for the report date.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

// New creates a Writer. template carries the model and sampling settings;
// its messages are replaced on every call.
func New(stream Streamer, template llm.Request, opts ...Option) *Writer {
	w := &Writer{
		stream:       stream,
		request:      template,
		instructions: DefaultInstructions,
		now:          time.Now,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements research.WriterProvider.
func (w *Writer) Write(ctx context.Context, topic string, articles map[string]research.ScrapedArticle) (research.TextStream, error) {
	input, err := Input(topic, articles)
	if err != nil {
		return nil, err
	}
	req := w.request
	req.Messages = []llm.Message{
		{Role: llm.RoleSystem, Content: w.SystemPrompt()},
		{Role: llm.RoleUser, Content: input},
	}
	w.logger.Debug("writing report", "topic", topic, "articles", len(articles), "model", req.Model)

	stream := w.stream(ctx, req)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start report stream: %w", err)
	}
	return &warningStream{TextStream: stream, logger: w.logger, model: req.Model}, nil
}

// warningDrainer is implemented by streams that collect provider warnings.
type warningDrainer interface {
	DrainWarnings() []string
}

// warningStream logs provider warnings as they arrive.
type warningStream struct {
	research.TextStream
	logger *slog.Logger
	model  string
}

func (s *warningStream) Next() bool {
	ok := s.TextStream.Next()
	if d, isDrainer := s.TextStream.(warningDrainer); isDrainer {
		llm.LogWarnings(s.logger, d.DrainWarnings(), "model", s.model)
	}
	return ok
}

// SystemPrompt is the persona, the instructions and the report template.
func (w *Writer) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\n")
	sb.WriteString(w.instructions)
	sb.WriteString("\n\nWrite the report in markdown using this structure:\n\n")
	fmt.Fprintf(&sb, reportTemplate, w.now().Format("January 2, 2006"))
	return sb.String()
}

// Input renders the document the model writes from: the topic and the
// articles ordered by URL.
func Input(topic string, articles map[string]research.ScrapedArticle) (string, error) {
	doc := struct {
		Topic    string                    `json:"topic"`
		Articles []research.ScrapedArticle `json:"articles"`
	}{Topic: topic, Articles: make([]research.ScrapedArticle, 0, len(articles))}

	for _, url := range slices.Sorted(maps.Keys(articles)) {
		doc.Articles = append(doc.Articles, articles[url])
	}
	bts, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode writer input: %w", err)
	}
	return string(bts), nil
}
