package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// DefaultDuckDuckGoURL is the HTML-only DuckDuckGo endpoint.
const DefaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the DuckDuckGo HTML results page.
type DuckDuckGo struct {
	Client    *http.Client
	BaseURL   string
	Region    string
	UserAgent string
}

// Name implements Engine.
func (*DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements Engine.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	base := d.BaseURL
	if base == "" {
		base = DefaultDuckDuckGoURL
	}
	params := url.Values{"q": {query}}
	if d.Region != "" {
		params.Set("kl", d.Region)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	body, err := get(ctx, client, base+"?"+params.Encode(), d.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	results, err := parseDuckDuckGo(body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func parseDuckDuckGo(body []byte) ([]Candidate, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	var results []Candidate
	seen := map[string]bool{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result--ad"):
				return
			case n.Data == "a" && hasClass(n, "result__a"):
				link := resolveDuckDuckGoLink(attr(n, "href"))
				if link != "" && !seen[link] {
					seen[link] = true
					results = append(results, Candidate{Title: nodeText(n), URL: link})
				}
				return
			case hasClass(n, "result__snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = nodeText(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

// resolveDuckDuckGoLink unwraps //duckduckgo.com/l/?uddg=<target> redirects.
func resolveDuckDuckGoLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			return resolveDuckDuckGoLink(target)
		}
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
