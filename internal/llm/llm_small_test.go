//go:build yar_small

package llm

import (
	"testing"

	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/stretchr/testify/require"
)

func TestBuildCallUserProviderOptionsSmallBuild(t *testing.T) {
	s := &Stream{api: "openai", request: Request{User: "alice"}}

	v, ok := s.buildCall().ProviderOptions[fopenaicompat.Name]
	require.True(t, ok)
	opts, ok := v.(*fopenaicompat.ProviderOptions)
	require.True(t, ok)
	require.Equal(t, "alice", *opts.User)
}
