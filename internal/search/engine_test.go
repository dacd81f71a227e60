package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixtureServer(t *testing.T, path, contentType string, check func(*http.Request)) *httptest.Server {
	t.Helper()
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDuckDuckGo(t *testing.T) {
	var query, region, agent string
	srv := fixtureServer(t, "testdata/duckduckgo.html", "text/html", func(r *http.Request) {
		query = r.URL.Query().Get("q")
		region = r.URL.Query().Get("kl")
		agent = r.UserAgent()
	})

	ddg := &DuckDuckGo{Client: srv.Client(), BaseURL: srv.URL + "/html/", Region: "uk-en", UserAgent: "yar-test"}
	got, err := ddg.Search(context.Background(), "fusion energy", 10)
	require.NoError(t, err)
	require.Equal(t, "fusion energy", query)
	require.Equal(t, "uk-en", region)
	require.Equal(t, "yar-test", agent)
	require.Equal(t, []Candidate{
		{Title: "ITER fusion newsline", URL: "https://www.iter.org/newsline", Snippet: "Latest news on the ITER tokamak."},
		{Title: "Fusion ignition, one year on", URL: "https://www.nature.com/articles/fusion", Snippet: "A review of the NIF results."},
	}, got)

	got, err = ddg.Search(context.Background(), "fusion energy", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestDuckDuckGoHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	_, err := (&DuckDuckGo{Client: srv.Client(), BaseURL: srv.URL}).Search(context.Background(), "x", 5)
	require.ErrorContains(t, err, "HTTP 429")
}

func TestResolveDuckDuckGoLink(t *testing.T) {
	for in, want := range map[string]string{
		"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%3Fb%3Dc": "https://example.com/a?b=c",
		"https://duckduckgo.com/l/?rut=x":                                "",
		"https://example.com/page":                                       "https://example.com/page",
		"/relative":                                                      "",
		"mailto:someone@example.com":                                     "",
		"":                                                               "",
	} {
		require.Equal(t, want, resolveDuckDuckGoLink(in), in)
	}
}

func TestRSS(t *testing.T) {
	var query string
	srv := fixtureServer(t, "testdata/news.rss", "application/rss+xml", func(r *http.Request) {
		query = r.URL.Query().Get("q")
	})

	rss := NewRSS(srv.Client(), srv.URL+"/rss/search?q={query}&hl=en", "")
	got, err := rss.Search(context.Background(), "fusion energy", 10)
	require.NoError(t, err)
	require.Equal(t, "fusion energy", query)
	require.Equal(t, []Candidate{
		{Title: "Startup reaches net energy milestone", URL: "https://news.example.com/fusion-milestone", Snippet: "Startup reaches net energy milestone"},
		{Title: "Tokamak record run", URL: "https://news.example.com/tokamak", Snippet: "A record-breaking plasma run."},
		{Title: "Stellarator design review", URL: "https://news.example.com/stellarator"},
	}, got)

	got, err = rss.Search(context.Background(), "fusion energy", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestRSSDefaultTemplate(t *testing.T) {
	require.Equal(t, DefaultRSSURL, NewRSS(nil, "", "").URLTemplate)
}

type fakeCaller struct {
	name string
	args map[string]any
	out  string
	err  error
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (string, error) {
	f.name, f.args = name, args
	return f.out, f.err
}

func TestMCP(t *testing.T) {
	t.Run("json array", func(t *testing.T) {
		caller := &fakeCaller{out: `[
			{"title": "ITER", "url": "https://www.iter.org", "description": "<p>Tokamak</p>"},
			{"title": "NIF", "link": "https://lasers.llnl.gov"},
			{"title": "No link"}
		]`}
		engine := &MCP{Caller: caller, Tool: "brave_brave_web_search"}

		got, err := engine.Search(context.Background(), "fusion", 5)
		require.NoError(t, err)
		require.Equal(t, "brave_brave_web_search", caller.name)
		require.Equal(t, map[string]any{"query": "fusion", "max_results": 5}, caller.args)
		require.Equal(t, []Candidate{
			{Title: "ITER", URL: "https://www.iter.org", Snippet: "Tokamak"},
			{Title: "NIF", URL: "https://lasers.llnl.gov"},
		}, got)
	})

	t.Run("results object", func(t *testing.T) {
		got := parseToolOutput("```json\n{\"results\":[{\"title\":\"A\",\"href\":\"https://a.example\",\"body\":\"alpha\"}]}\n```")
		require.Equal(t, []Candidate{{Title: "A", URL: "https://a.example", Snippet: "alpha"}}, got)
	})

	t.Run("markdown links", func(t *testing.T) {
		got := parseToolOutput("1. [Fusion primer](https://a.example/primer)\n2. [Again](https://a.example/primer)\n3. [Other](https://b.example)")
		require.Equal(t, []Candidate{
			{Title: "Fusion primer", URL: "https://a.example/primer"},
			{Title: "Other", URL: "https://b.example"},
		}, got)
	})

	t.Run("tool error", func(t *testing.T) {
		boom := errors.New("rate limited")
		_, err := (&MCP{Caller: &fakeCaller{err: boom}, Tool: "brave_search"}).Search(context.Background(), "x", 3)
		require.ErrorIs(t, err, boom)
	})
}

func TestPlainText(t *testing.T) {
	require.Equal(t, "a & b", plainText("a &amp;  b"))
	require.Equal(t, "Hello world", plainText("<p>Hello <b>world</b></p>"))
	require.Empty(t, plainText(""))
}
