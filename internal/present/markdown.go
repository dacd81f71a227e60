package present

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
)

const markdownTabWidth = 4

// RenderMarkdownForTTY renders a report for terminal output. theme names a
// glamour style; empty picks one from the environment.
func RenderMarkdownForTTY(input string, wordWrap int, theme string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wordWrap)}
	if theme != "" {
		opts = append(opts, glamour.WithStandardStyle(theme))
	} else {
		opts = append(opts, glamour.WithEnvironmentConfig())
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("new markdown renderer: %w", err)
	}

	out, err := r.Render(input)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	out = strings.ReplaceAll(out, "\t", strings.Repeat(" ", markdownTabWidth))
	return out + "\n", nil
}
