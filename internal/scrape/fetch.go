// Package scrape turns article URLs into readable text.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

// ErrUnsupportedContent is returned for responses that are not HTML.
var ErrUnsupportedContent = errors.New("unsupported content type")

// Page is a fetched document. HTML is set by fetchers that return markup;
// Text by fetchers that already return readable text.
type Page struct {
	HTML string
	Text string
}

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// ToolCaller runs an MCP tool.
type ToolCaller interface {
	CallTool(ctx context.Context, fullName string, args map[string]any) (string, error)
}

const defaultMaxBytes = 8 << 20

// HTTPFetcher downloads pages over HTTP.
type HTTPFetcher struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || (mt != "text/html" && mt != "application/xhtml+xml") {
			return Page{}, fmt.Errorf("%w: %s", ErrUnsupportedContent, ct)
		}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}
	return Page{HTML: string(body)}, nil
}

// MCPFetcher fetches pages through an MCP tool such as fetch_fetch.
type MCPFetcher struct {
	Caller ToolCaller
	Tool   string
}

// Fetch implements Fetcher.
func (f *MCPFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	out, err := f.Caller.CallTool(ctx, f.Tool, map[string]any{"url": url})
	if err != nil {
		return Page{}, err
	}
	trimmed := strings.TrimSpace(out)
	if strings.HasPrefix(trimmed, "<") && strings.Contains(strings.ToLower(trimmed[:min(len(trimmed), 512)]), "<html") {
		return Page{HTML: out}, nil
	}
	return Page{Text: out}, nil
}
