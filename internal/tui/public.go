package tui

import (
	"strings"
	"unicode"
)

// GlamourOutput renders the final report for printing once the program has
// exited. It is empty for raw output and for runs without a report.
func (m *Research) GlamourOutput() string {
	if m.Output == "" || !m.shouldRender() {
		return ""
	}
	out, err := m.glam.Render(m.Output)
	if err != nil {
		return ""
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	return strings.ReplaceAll(out, "\t", strings.Repeat(" ", tabWidth)) + "\n"
}

// Stages returns the progress lines shown so far, one per stage.
func (m *Research) Stages() []string {
	lines := make([]string, 0, len(m.stages))
	for _, s := range m.stages {
		lines = append(lines, string(s.stage)+": "+s.text)
	}
	return lines
}
