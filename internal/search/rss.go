package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

// DefaultRSSURL searches Google News and returns the hits as RSS.
const DefaultRSSURL = "https://news.google.com/rss/search?q={query}&hl=en-US&gl=US&ceid=US:en"

// RSS queries a news search feed. URLTemplate must contain {query}.
type RSS struct {
	Client      *http.Client
	URLTemplate string
	UserAgent   string
}

// NewRSS creates an RSS engine.
func NewRSS(client *http.Client, urlTemplate, userAgent string) *RSS {
	if urlTemplate == "" {
		urlTemplate = DefaultRSSURL
	}
	return &RSS{
		Client:      client,
		URLTemplate: urlTemplate,
		UserAgent:   userAgent,
	}
}

// Name implements Engine.
func (*RSS) Name() string { return "rss" }

// Search implements Engine.
func (r *RSS) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	feedURL := strings.ReplaceAll(r.URLTemplate, "{query}", url.QueryEscape(query))

	parser := gofeed.NewParser()
	parser.Client = client
	if r.UserAgent != "" {
		parser.UserAgent = r.UserAgent
	}
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("rss: %w", err)
	}

	results := make([]Candidate, 0, len(feed.Items))
	seen := map[string]bool{}
	for _, item := range feed.Items {
		if item.Link == "" || seen[item.Link] {
			continue
		}
		seen[item.Link] = true
		desc := item.Description
		if desc == "" {
			desc = item.Content
		}
		results = append(results, Candidate{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Snippet: plainText(desc),
		})
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}
