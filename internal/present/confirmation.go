package present

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirmation actions.
const (
	ActionWrote  = "WROTE"
	ActionCopied = "COPIED"
	ActionPruned = "PRUNED"
)

// Confirmation prints a short action header followed by content, e.g.
// "COPIED report for 'fusion power' to the clipboard".
func Confirmation(w io.Writer, r *lipgloss.Renderer, action, content string) {
	if action == "" {
		action = ActionWrote
	}
	header := r.NewStyle().
		Foreground(lipgloss.Color("#F1F1F1")).
		Background(lipgloss.Color("#6C50FF")).
		Bold(true).
		Padding(0, 1).
		MarginRight(1).
		SetString(strings.ToUpper(action))
	_, _ = fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Center, header.String(), content))
}
