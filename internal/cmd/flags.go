package cmd

import (
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/duration"
)

var helpText = map[string]string{
	"api":                   "OpenAI compatible REST API (openai, localai, anthropic, ...)",
	"ask-model":             "Ask which model to use via interactive prompt",
	"model":                 "Default model (gpt-4o, claude-sonnet-4-5, ...)",
	"search-model":          "Model used to pick sources from the search results",
	"http-proxy":            "HTTP proxy to use for API, search and page requests",
	"search-cache":          "Reuse cached search results for the topic",
	"scrape-cache":          "Reuse cached article contents for the topic",
	"cached-report":         "Print a previously written report without researching again",
	"fresh":                 "Ignore every cache for this run",
	"cache-backend":         "Cache backend: sqlite, file or memory",
	"search-engine":         "Search engine: duckduckgo, rss or mcp",
	"search-pick":           "Number of sources kept for the report",
	"fetcher":               "Page fetcher: http or mcp",
	"instructions":          "Writer instructions: raw text, file:// path or http(s) URL",
	"raw":                   "Print the report as raw markdown",
	"copy":                  "Copy the report to the clipboard",
	"quiet":                 "Quiet mode (hide the progress view and status lines)",
	"verbose":               "Log debug details",
	"editor":                "Write the topic in $EDITOR",
	"word-wrap":             "Wrap formatted output at specific width (default is 80)",
	"theme":                 "Glamour style for rendered reports (dark, light, dracula, notty...)",
	"max-tokens":            "Maximum number of tokens in the report",
	"temp":                  "Temperature (randomness) of results, from 0.0 to 2.0, -1.0 to disable",
	"topp":                  "TopP, an alternative to temperature that narrows response, from 0.0 to 1.0, -1.0 to disable",
	"topk":                  "TopK, only sample from the top K options for each subsequent token, -1 to disable",
	"settings":              "Open settings in your $EDITOR",
	"reset-settings":        "Backup your old settings file and reset everything to the defaults",
	"dirs":                  "Print the directories in which yar stores its data",
	"help":                  "Show help and exit",
	"version":               "Show version and exit",
	"mcp-disable":           "Disable specific MCP servers",
	"older-than":            "Delete runs older than the given duration (10d, 1mo)",
	"max-completion-tokens": "Maximum number of completion tokens (OpenAI o-series models)",
}

type flagParseError struct {
	err    error
	reason string
	flag   string
}

func (f flagParseError) Error() string {
	return f.err.Error()
}

func (f flagParseError) ReasonFormat() string {
	return f.reason
}

func (f flagParseError) Flag() string {
	return f.flag
}

var (
	shorthandFlagRe   = regexp.MustCompile(`unknown shorthand flag: '.*' in (-\w)`)
	invalidArgumentRe = regexp.MustCompile(`invalid argument ".*" for "(.*)" flag: .*`)
)

func newFlagParseError(err error) flagParseError {
	var reason, flag string
	s := err.Error()
	switch {
	case strings.HasPrefix(s, "flag needs an argument:"):
		reason = "Flag %s needs an argument."
		ps := strings.Split(s, "-")
		switch len(ps) {
		case 2: //nolint:mnd
			flag = "-" + ps[len(ps)-1]
		case 3: //nolint:mnd
			flag = "--" + ps[len(ps)-1]
		}
	case strings.HasPrefix(s, "unknown flag:"):
		reason = "Flag %s is missing."
		flag = strings.TrimPrefix(s, "unknown flag: ")
	case strings.HasPrefix(s, "unknown shorthand flag:"):
		reason = "Short flag %s is missing."
		if parts := shorthandFlagRe.FindStringSubmatch(s); len(parts) > 1 {
			flag = parts[1]
		}
	case strings.HasPrefix(s, "invalid argument"):
		reason = "Flag %s have an invalid argument."
		if parts := invalidArgumentRe.FindStringSubmatch(s); len(parts) > 1 {
			flag = parts[1]
		}
	default:
		reason = s
	}
	return flagParseError{err: err, reason: reason, flag: flag}
}

// durationFlag accepts day, week, month and year units on top of the ones
// time.ParseDuration knows.
type durationFlag time.Duration

func newDurationFlag(val time.Duration, p *time.Duration) *durationFlag {
	*p = val
	return (*durationFlag)(p)
}

func (d *durationFlag) Set(s string) error {
	v, err := duration.Parse(s)
	*d = durationFlag(v)
	//nolint: wrapcheck
	return err
}

func (d *durationFlag) String() string {
	return time.Duration(*d).String()
}

func (*durationFlag) Type() string {
	return "duration"
}
