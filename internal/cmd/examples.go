package cmd

import (
	"maps"
	"math/rand"
	"regexp"
	"slices"

	"github.com/dotcommander/yar/internal/present"
)

var examples = map[string]string{
	"Research a topic and render the report":    `yar "state of fusion energy in 2025"`,
	"Skip the caches and research from scratch": `yar --fresh "rust vs go for network services"`,
	"Pipe a topic in and keep the markdown":     `echo "solid state batteries" | yar --raw > batteries.md`,
	"Search news feeds instead of the web":      `yar --search-engine rss "quantum error correction"`,
}

// exampleTopics are offered by the interactive topic prompt.
var exampleTopics = []string{
	"State of fusion energy",
	"Solid state batteries",
	"Quantum error correction",
	"Memory safety in systems languages",
	"Urban heat islands",
}

var (
	quoteRe = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRe  = regexp.MustCompile(`\||>`)
)

func randomExample() string {
	keys := slices.Sorted(maps.Keys(examples))
	return keys[rand.Intn(len(keys))] //nolint:gosec
}

func cheapHighlighting(s present.Styles, code string) string {
	code = quoteRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Quote.Render(x)
	})
	return pipeRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Pipe.Render(x)
	})
}
