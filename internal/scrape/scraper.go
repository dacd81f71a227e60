package scrape

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/dotcommander/yar/internal/research"
)

const (
	// DefaultMinChars is the shortest text treated as an article.
	DefaultMinChars = 200
	// DefaultMaxChars caps the text kept per article.
	DefaultMaxChars = 20000
)

// Scraper implements research.ScrapeProvider.
type Scraper struct {
	fetcher  Fetcher
	minChars int
	maxChars int
	logger   *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithLimits sets the minimum and maximum article length in characters.
func WithLimits(minChars, maxChars int) Option {
	return func(s *Scraper) {
		if minChars > 0 {
			s.minChars = minChars
		}
		if maxChars > 0 {
			s.maxChars = maxChars
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) { s.logger = logger }
}

// New creates a Scraper.
func New(fetcher Fetcher, opts ...Option) *Scraper {
	s := &Scraper{
		fetcher:  fetcher,
		minChars: DefaultMinChars,
		maxChars: DefaultMaxChars,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape implements research.ScrapeProvider. Failures are logged and
// reported as an article without content.
func (s *Scraper) Scrape(ctx context.Context, url string) research.ScrapedArticle {
	article := research.ScrapedArticle{URL: url}

	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("scrape failed", "url", url, "err", err)
		return article
	}

	doc := Document{Text: page.Text}
	if page.HTML != "" {
		doc, err = Extract(page.HTML)
		if err != nil {
			s.logger.Warn("scrape failed", "url", url, "err", err)
			return article
		}
	} else {
		doc.Title = markdownTitle(page.Text)
	}

	article.Title = doc.Title
	article.Summary = doc.Summary
	text := strings.TrimSpace(doc.Text)
	if n := utf8.RuneCountInString(text); n < s.minChars {
		s.logger.Warn("scrape found no article text", "url", url, "chars", n)
		return article
	}
	article.Content = truncate(text, s.maxChars)
	s.logger.Debug("scraped", "url", url, "chars", utf8.RuneCountInString(article.Content))
	return article
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxChars]))
}

// markdownTitle returns the first level-one heading near the top of text.
func markdownTitle(text string) string {
	seen := 0
	for line := range strings.Lines(text) {
		if title, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(title)
		}
		if seen++; seen == 10 {
			break
		}
	}
	return ""
}
