package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/errs"
)

func testService(disable ...string) *Service {
	cfg := config.Default()
	cfg.MCPServers = map[string]config.MCPServerConfig{
		"fetch": {Command: "uvx", Args: []string{"mcp-server-fetch"}},
		"brave": {Type: "http", URL: "http://127.0.0.1:1/mcp"},
		"odd":   {Type: "carrier-pigeon"},
	}
	cfg.MCPDisable = disable
	return New(&cfg)
}

func TestEnabledServers(t *testing.T) {
	names := func(s *Service) []string {
		var out []string
		for name := range s.EnabledServers() {
			out = append(out, name)
		}
		return out
	}

	require.Equal(t, []string{"brave", "fetch", "odd"}, names(testService()))
	require.Equal(t, []string{"fetch", "odd"}, names(testService("brave")))
	require.Empty(t, names(testService("*")))
	require.False(t, testService("*").IsEnabled("fetch"))
}

func TestSplitToolName(t *testing.T) {
	server, tool, err := SplitToolName("fetch_fetch")
	require.NoError(t, err)
	require.Equal(t, "fetch", server)
	require.Equal(t, "fetch", tool)

	server, tool, err = SplitToolName("brave_brave_web_search")
	require.NoError(t, err)
	require.Equal(t, "brave", server)
	require.Equal(t, "brave_web_search", tool)

	for _, name := range []string{"fetch", "_fetch", "fetch_"} {
		_, _, err := SplitToolName(name)
		require.Error(t, err, name)
	}
}

func TestCallToolErrors(t *testing.T) {
	ctx := context.Background()

	_, err := testService().CallTool(ctx, "nope", nil)
	require.ErrorContains(t, err, "invalid tool name")

	_, err = testService().CallTool(ctx, "missing_tool", nil)
	require.ErrorContains(t, err, "invalid server name")

	_, err = testService("fetch").CallTool(ctx, "fetch_fetch", nil)
	require.ErrorContains(t, err, "server is disabled")

	_, err = testService().CallTool(ctx, "odd_tool", nil)
	require.ErrorContains(t, err, "unsupported MCP server type")
}

func TestToolsWrapsErrors(t *testing.T) {
	svc := testService("fetch", "brave")
	_, err := svc.Tools(context.Background())
	reason, ok := errs.ReasonOf(err)
	require.True(t, ok)
	require.Equal(t, "Could not list tools", reason)
}

func TestTextContent(t *testing.T) {
	got := textContent([]mcp.Content{
		mcp.TextContent{Type: "text", Text: "hello "},
		mcp.ImageContent{Type: "image", Data: "xx", MIMEType: "image/png"},
	})
	require.Equal(t, "hello [Non-text content]", got)
}
