package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := ParseLevel(name)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Run("text to writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger, closer, err := New(Config{Level: "warn", Output: &buf})
		require.NoError(t, err)
		defer closer() //nolint:errcheck

		logger.Info("hidden")
		logger.Warn("search attempt failed", "attempt", 1)
		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), "attempt=1")
	})

	t.Run("json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "yar.log")
		logger, closer, err := New(Config{Level: "debug", Format: "json", File: path})
		require.NoError(t, err)

		logger.Debug("scraping", "url", "https://a.example")
		require.NoError(t, closer())

		bts, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(bts), `"url":"https://a.example"`)
	})

	t.Run("bad format", func(t *testing.T) {
		_, _, err := New(Config{Format: "xml"})
		require.Error(t, err)
	})
}
