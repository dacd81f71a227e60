package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/dotcommander/yar/internal/llm"
	"github.com/dotcommander/yar/internal/research"
)

// Completer runs a single non-streaming completion.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

const (
	// DefaultResults is how many candidates are requested from the engine.
	DefaultResults = 15
	// DefaultPick is how many sources are kept.
	DefaultPick = 7
)

const selectionPrompt = `You are ResearchBot-X, an expert at discovering and evaluating academic and scientific sources.

You are given candidate search results for a research topic. Identify the %d most authoritative and relevant ones.
Prioritize:
- Peer-reviewed articles and academic publications
- Recent developments from reputable institutions
- Authoritative news sources and expert commentary
- Diverse perspectives from recognized experts
Avoid opinion pieces and non-authoritative sources.

Only choose URLs from the candidates. Reply with JSON only, in this shape:
{"articles":[{"title":"...","url":"...","summary":"..."}]}`

// Searcher implements research.SearchProvider: it asks an Engine for
// candidates and lets a language model pick the best sources.
type Searcher struct {
	engine  Engine
	model   Completer
	request llm.Request
	results int
	pick    int
	logger  *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithSelector picks sources with the given model. Without one the top
// candidates are used as they are.
func WithSelector(c Completer, template llm.Request) Option {
	return func(s *Searcher) {
		s.model = c
		s.request = template
	}
}

// WithLimits sets the candidate count and the number of sources kept.
func WithLimits(results, pick int) Option {
	return func(s *Searcher) {
		if results > 0 {
			s.results = results
		}
		if pick > 0 {
			s.pick = pick
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) { s.logger = logger }
}

// New creates a Searcher over engine.
func New(engine Engine, opts ...Option) *Searcher {
	s := &Searcher{
		engine:  engine,
		results: DefaultResults,
		pick:    DefaultPick,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search implements research.SearchProvider.
func (s *Searcher) Search(ctx context.Context, topic string) (research.SearchResultSet, error) {
	candidates, err := s.engine.Search(ctx, topic, s.results)
	if err != nil {
		return research.SearchResultSet{}, fmt.Errorf("%w: %w", research.ErrSearchFailure, err)
	}
	s.logger.Debug("search candidates", "engine", s.engine.Name(), "topic", topic, "count", len(candidates))
	if len(candidates) == 0 {
		return research.SearchResultSet{}, ErrNoResults
	}

	if s.model == nil || len(candidates) <= s.pick {
		set := fromCandidates(candidates, s.pick)
		if len(set.Articles) == 0 {
			return research.SearchResultSet{}, fmt.Errorf("%w: no usable candidates", research.ErrSearchFailure)
		}
		return set, nil
	}

	answer, err := s.model.Complete(ctx, s.selectionRequest(topic, candidates))
	if err != nil {
		return research.SearchResultSet{}, fmt.Errorf("%w: select sources: %w", research.ErrSearchFailure, err)
	}
	set, err := parseSelection(answer, candidates, s.pick)
	if err != nil {
		return research.SearchResultSet{}, err
	}
	s.logger.Debug("search selection", "topic", topic, "count", len(set.Articles))
	return set, nil
}

func (s *Searcher) selectionRequest(topic string, candidates []Candidate) llm.Request {
	doc, _ := json.MarshalIndent(struct {
		Topic      string      `json:"topic"`
		Candidates []Candidate `json:"candidates"`
	}{topic, candidates}, "", "  ")

	req := s.request
	req.Messages = []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(selectionPrompt, s.pick)},
		{Role: llm.RoleUser, Content: string(doc)},
	}
	return req
}

func fromCandidates(candidates []Candidate, pick int) research.SearchResultSet {
	var set research.SearchResultSet
	seen := map[string]bool{}
	for _, c := range candidates {
		if len(set.Articles) == pick {
			break
		}
		if !validURL(c.URL) || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		set.Articles = append(set.Articles, research.ArticleReference{
			Title:   titleOrHost(c.Title, c.URL),
			URL:     c.URL,
			Summary: c.Snippet,
		})
	}
	return set
}

// parseSelection decodes the model answer and keeps at most pick valid,
// unique references.
func parseSelection(answer string, candidates []Candidate, pick int) (research.SearchResultSet, error) {
	var set research.SearchResultSet
	if err := json.Unmarshal([]byte(stripCodeFence(answer)), &set); err != nil {
		return research.SearchResultSet{}, fmt.Errorf("%w: decode selection: %w", research.ErrSearchFailure, err)
	}

	snippets := make(map[string]string, len(candidates))
	for _, c := range candidates {
		snippets[c.URL] = c.Snippet
	}

	var out research.SearchResultSet
	seen := map[string]bool{}
	for _, a := range set.Articles {
		a.URL = strings.TrimSpace(a.URL)
		if !validURL(a.URL) || seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		a.Title = titleOrHost(a.Title, a.URL)
		if a.Summary == "" {
			a.Summary = snippets[a.URL]
		}
		out.Articles = append(out.Articles, a)
		if len(out.Articles) == pick {
			break
		}
	}
	if len(out.Articles) == 0 {
		return research.SearchResultSet{}, fmt.Errorf("%w: selection has no usable articles", research.ErrSearchFailure)
	}
	return out, nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func titleOrHost(title, link string) string {
	if title = strings.TrimSpace(title); title != "" {
		return title
	}
	if u, err := url.Parse(link); err == nil {
		return u.Host
	}
	return link
}

// stripCodeFence removes a surrounding ``` block, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
