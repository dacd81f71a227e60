package search

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MCP searches through a configured MCP tool, such as brave_brave_web_search.
type MCP struct {
	Caller ToolCaller
	Tool   string
}

// Name implements Engine.
func (m *MCP) Name() string { return "mcp:" + m.Tool }

// Search implements Engine.
func (m *MCP) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	out, err := m.Caller.CallTool(ctx, m.Tool, map[string]any{
		"query":       query,
		"max_results": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp search: %w", err)
	}
	results := parseToolOutput(out)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

type toolHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Link        string `json:"link"`
	Href        string `json:"href"`
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
	Body        string `json:"body"`
}

func (h toolHit) candidate() Candidate {
	return Candidate{
		Title:   strings.TrimSpace(h.Title),
		URL:     firstNonEmpty(h.URL, h.Link, h.Href),
		Snippet: plainText(firstNonEmpty(h.Snippet, h.Description, h.Body)),
	}
}

var markdownLink = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^)\s]+)\)`)

// parseToolOutput accepts a JSON array of hits, a JSON object holding one
// under "results", or markdown links.
func parseToolOutput(out string) []Candidate {
	out = strings.TrimSpace(stripCodeFence(out))

	var hits []toolHit
	if err := json.Unmarshal([]byte(out), &hits); err != nil {
		var wrapped struct {
			Results []toolHit `json:"results"`
		}
		if err := json.Unmarshal([]byte(out), &wrapped); err == nil {
			hits = wrapped.Results
		}
	}

	var results []Candidate
	seen := map[string]bool{}
	add := func(c Candidate) {
		if c.URL == "" || seen[c.URL] {
			return
		}
		seen[c.URL] = true
		results = append(results, c)
	}

	if len(hits) > 0 {
		for _, h := range hits {
			add(h.candidate())
		}
		return results
	}
	for _, m := range markdownLink.FindAllStringSubmatch(out, -1) {
		add(Candidate{Title: strings.TrimSpace(m[1]), URL: m[2]})
	}
	return results
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
