package present

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderMarkdownForTTY(t *testing.T) {
	for _, theme := range []string{"", "notty", "dark"} {
		t.Run("theme "+theme, func(t *testing.T) {
			out, err := RenderMarkdownForTTY("# Fusion\n\nhello\tworld\n", 80, theme)
			require.NoError(t, err)
			require.True(t, strings.HasSuffix(out, "\n"))
			require.False(t, strings.Contains(out, "\t"))
			require.Contains(t, out, "Fusion")
		})
	}
}

func TestMakeGradientText(t *testing.T) {
	require.Equal(t, "ya", MakeGradientText(StdoutStyles().AppName, "ya"))
	require.Contains(t, MakeGradientText(StdoutStyles().AppName, "yar"), "r")
	require.Len(t, MakeGradientRamp(5), 5)
	require.Equal(t, []int{3, 2, 1}, Reverse([]int{1, 2, 3}))
}

func TestConfirmation(t *testing.T) {
	var sb strings.Builder
	Confirmation(&sb, StderrRenderer(), "copied", "report for 'fusion power'")
	require.Contains(t, sb.String(), "COPIED")
	require.Contains(t, sb.String(), "fusion power")

	sb.Reset()
	Confirmation(&sb, StderrRenderer(), "", "x")
	require.Contains(t, sb.String(), ActionWrote)
}
