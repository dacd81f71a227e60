// Package search finds candidate articles for a topic and narrows them down
// to the most relevant sources.
package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"github.com/dotcommander/yar/internal/research"
)

// ErrNoResults is returned when the engine found nothing for the topic.
var ErrNoResults = fmt.Errorf("no search results: %w", research.ErrSearchFailure)

// Candidate is one raw hit returned by an Engine.
type Candidate struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Engine runs a query against a search backend.
type Engine interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// ToolCaller runs an MCP tool.
type ToolCaller interface {
	CallTool(ctx context.Context, fullName string, args map[string]any) (string, error)
}

const maxPageBytes = 4 << 20

func get(ctx context.Context, client *http.Client, url, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("search request failed: HTTP %d", resp.StatusCode)
	}
	bts, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return bts, nil
}

// plainText flattens an HTML fragment into a single line of text.
func plainText(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return strings.Join(strings.Fields(html.UnescapeString(fragment)), " ")
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
			sb.WriteByte(' ')
		default:
		}
	}
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
