//go:build yar_small

package llm

import (
	"charm.land/fantasy"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
)

func applyProviderOptions(call *fantasy.Call, _ string, _ Config, req Request) {
	if req.User == "" {
		return
	}
	user := req.User
	call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
}
