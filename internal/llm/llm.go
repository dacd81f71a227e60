// Package llm streams chat completions through charm.land/fantasy providers.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"charm.land/fantasy"
)

const (
	apiAnthropic = "anthropic"
	apiGoogle    = "google"
	apiOpenAI    = "openai"
	apiAzure     = "azure"
	apiAzureAD   = "azure-ad"
)

// Role is a chat message role.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion request.
type Request struct {
	Model               string
	Messages            []Message
	MaxTokens           *int64
	MaxCompletionTokens *int64
	Temperature         *float64
	TopP                *float64
	TopK                *int64
	User                string
}

// Config represents provider configuration.
type Config struct {
	API            string
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	ThinkingBudget int
	// Logger receives provider warnings from Complete. Nil drops them.
	Logger *slog.Logger
}

// Client talks to one provider.
type Client struct {
	provider fantasy.Provider
	config   Config
}

// New creates a new Fantasy-backed client.
func New(cfg Config) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{provider: provider, config: cfg}, nil
}

// API returns the provider name the client was built for.
func (c *Client) API() string { return c.config.API }

// Stream starts a streaming completion. Errors starting the stream are
// reported by the returned Stream's Err.
func (c *Client) Stream(ctx context.Context, req Request) *Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ctx:         streamCtx,
		cancel:      cancel,
		request:     req,
		api:         c.config.API,
		config:      c.config,
		warningSeen: map[string]struct{}{},
	}
	if err := s.start(c.provider); err != nil {
		s.err = err
	}
	return s
}

// Complete runs req to completion and returns the whole text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	s := c.Stream(ctx, req)
	defer s.Close() //nolint:errcheck

	var sb strings.Builder
	for s.Next() {
		sb.WriteString(s.Current())
	}
	LogWarnings(c.config.Logger, s.DrainWarnings(), "model", req.Model)
	if err := s.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Stream yields text deltas.
type Stream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	request Request
	api     string
	config  Config

	mu sync.Mutex

	partCh          chan fantasy.StreamPart
	current         string
	err             error
	warningSeen     map[string]struct{}
	pendingWarnings []string
}

// Next advances to the next text delta.
func (s *Stream) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil || s.partCh == nil {
		return false
	}
	for {
		part, ok := <-s.partCh
		if !ok {
			if err := s.ctx.Err(); err != nil {
				s.err = err
			}
			return false
		}
		if s.consumePart(part) {
			return true
		}
		if s.err != nil {
			return false
		}
	}
}

// Current returns the delta read by the last successful Next.
func (s *Stream) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close stops the underlying request.
func (s *Stream) Close() error {
	s.cancel()
	return nil
}

// Err returns the first error hit while streaming.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// DrainWarnings returns provider warnings not yet drained.
func (s *Stream) DrainWarnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	warnings := append([]string(nil), s.pendingWarnings...)
	s.pendingWarnings = nil
	return warnings
}

// LogWarnings logs each provider warning at warn level with the given
// attributes.
func LogWarnings(logger *slog.Logger, warnings []string, args ...any) {
	if logger == nil {
		return
	}
	for _, w := range warnings {
		logger.Warn("provider warning: "+w, args...)
	}
}

func (s *Stream) start(provider fantasy.Provider) error {
	model, err := provider.LanguageModel(s.ctx, s.request.Model)
	if err != nil {
		return fmt.Errorf("fantasy language model: %w", err)
	}

	seq, err := model.Stream(s.ctx, s.buildCall())
	if err != nil {
		return fmt.Errorf("fantasy stream: %w", err)
	}

	s.partCh = make(chan fantasy.StreamPart, 64)
	go func() {
		defer close(s.partCh)
		for part := range seq {
			select {
			case <-s.ctx.Done():
				return
			case s.partCh <- part:
			}
		}
	}()
	return nil
}

func (s *Stream) buildCall() fantasy.Call {
	call := fantasy.Call{
		Prompt:          toFantasyPrompt(s.request.Messages),
		MaxOutputTokens: s.request.MaxTokens,
		Temperature:     s.request.Temperature,
		TopP:            s.request.TopP,
		TopK:            s.request.TopK,
		ProviderOptions: fantasy.ProviderOptions{},
	}
	applyProviderOptions(&call, s.api, s.config, s.request)
	return call
}

// consumePart reports whether part carried text.
func (s *Stream) consumePart(part fantasy.StreamPart) bool {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		if part.Delta == "" {
			return false
		}
		s.current = part.Delta
		return true
	case fantasy.StreamPartTypeError:
		if part.Error != nil {
			s.err = part.Error
		}
	case fantasy.StreamPartTypeWarnings:
		for _, warning := range part.Warnings {
			text := strings.TrimSpace(warning.Message)
			if text == "" {
				text = strings.TrimSpace(warning.Details)
			}
			if text == "" && warning.Setting != "" {
				text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
			}
			if text == "" {
				text = "provider warning"
			}
			key := string(warning.Type) + ":" + text
			if _, exists := s.warningSeen[key]; exists {
				continue
			}
			s.warningSeen[key] = struct{}{}
			s.pendingWarnings = append(s.pendingWarnings, text)
		}
	default:
	}
	return false
}

func toFantasyPrompt(input []Message) fantasy.Prompt {
	messages := make([]fantasy.Message, 0, len(input))
	for _, msg := range input {
		text := []fantasy.MessagePart{fantasy.TextPart{Text: msg.Content}}
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, fantasy.Message{Role: fantasy.MessageRoleSystem, Content: text})
		case RoleUser:
			messages = append(messages, fantasy.Message{Role: fantasy.MessageRoleUser, Content: text})
		case RoleAssistant:
			if msg.Content != "" {
				messages = append(messages, fantasy.Message{Role: fantasy.MessageRoleAssistant, Content: text})
			}
		}
	}
	return messages
}
