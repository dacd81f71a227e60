//go:build !yar_small

package llm

import (
	"charm.land/fantasy"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
)

func openAIFamily(api string) bool {
	return api == apiOpenAI || api == apiAzure || api == apiAzureAD
}

func applyProviderOptions(call *fantasy.Call, api string, cfg Config, req Request) {
	var openAIOpts *fopenai.ProviderOptions
	if openAIFamily(api) && (req.User != "" || req.MaxCompletionTokens != nil) {
		openAIOpts = &fopenai.ProviderOptions{MaxCompletionTokens: req.MaxCompletionTokens}
		if req.User != "" {
			user := req.User
			openAIOpts.User = &user
		}
		call.ProviderOptions[fopenai.Name] = openAIOpts
	}

	switch api {
	case apiOpenAI, apiAzure, apiAzureAD, apiAnthropic, apiOpenRouter, apiVercel, apiBedrock:
	case apiGoogle:
		if cfg.ThinkingBudget > 0 {
			call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
				ThinkingConfig: &fgoogle.ThinkingConfig{
					ThinkingBudget: fantasy.Opt(int64(cfg.ThinkingBudget)),
				},
			}
		}
	default:
		if req.User != "" {
			user := req.User
			call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
		}
	}
}
