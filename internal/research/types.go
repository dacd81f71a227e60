package research

import (
	"context"
	"errors"
	"strings"
)

// ErrSearchFailure is returned by a SearchProvider that could not produce a
// valid result set. The orchestrator retries it before giving up.
var ErrSearchFailure = errors.New("search failed")

// ArticleReference is one search hit.
type ArticleReference struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary,omitempty"`
}

// SearchResultSet is the ordered output of a search.
type SearchResultSet struct {
	Articles []ArticleReference `json:"articles"`
}

// ScrapedArticle is an ArticleReference plus the page body. An empty Content
// means the content could not be obtained.
type ScrapedArticle struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary,omitempty"`
	Content string `json:"content,omitempty"`
}

// HasContent reports whether the article carries a usable body.
func (a ScrapedArticle) HasContent() bool {
	return strings.TrimSpace(a.Content) != ""
}

// SearchProvider finds articles about a topic.
type SearchProvider interface {
	Search(ctx context.Context, topic string) (SearchResultSet, error)
}

// ScrapeProvider fetches one article. Implementations report failures by
// returning an article without content, never an error.
type ScrapeProvider interface {
	Scrape(ctx context.Context, url string) ScrapedArticle
}

// WriterProvider synthesizes a report from scraped articles.
type WriterProvider interface {
	Write(ctx context.Context, topic string, articles map[string]ScrapedArticle) (TextStream, error)
}

// TextStream yields report text incrementally.
type TextStream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// NormalizeTopic folds case and whitespace so that equivalent topics share
// cache entries.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}
