package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMsg(t *testing.T) {
	const content = "You are a careful research analyst."
	ctx := context.Background()

	t.Run("raw text", func(t *testing.T) {
		msg, err := LoadMsg(ctx, content)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "writer.txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		msg, err := LoadMsg(ctx, "file://"+path)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadMsg(ctx, "file://"+filepath.Join(t.TempDir(), "nope.md"))
		require.Error(t, err)
	})

	t.Run("markdown file strips yaml frontmatter", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "writer.md")
		md := "---\nname: analyst\n---\nWrite in plain English.\n"
		require.NoError(t, os.WriteFile(path, []byte(md), 0o644))

		msg, err := LoadMsg(ctx, "file://"+path)
		require.NoError(t, err)
		require.Equal(t, "Write in plain English.\n", msg)
	})

	t.Run("markdown file with invalid frontmatter errors", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "writer.md")
		require.NoError(t, os.WriteFile(path, []byte("---\nname: [broken\n---\ncontent"), 0o644))

		_, err := LoadMsg(ctx, "file://"+path)
		require.ErrorContains(t, err, "invalid markdown frontmatter")
	})

	t.Run("http", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(content))
		}))
		t.Cleanup(srv.Close)

		msg, err := LoadMsg(ctx, srv.URL)
		require.NoError(t, err)
		require.Equal(t, content, msg)
	})

	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		t.Cleanup(srv.Close)

		_, err := LoadMsg(ctx, srv.URL)
		require.ErrorContains(t, err, "HTTP 404")
	})
}
