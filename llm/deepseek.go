// DeepSeek Provider using the OpenAI-compatible API.

package llm

import (
	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// NewDeepSeekProvider creates a provider for DeepSeek. It speaks the
// OpenAI wire format against a different base URL.
func NewDeepSeekProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = deepseekBaseURL

	return &OpenAIProvider{
		name:             "deepseek",
		client:           openai.NewClientWithConfig(config),
		model:            model,
		maxTokens:        int(maxTokens),
		temperature:      temperature,
		completionTokens: true,
	}
}

// NewOpenAICompatibleProvider creates a provider for any endpoint that
// implements the OpenAI chat completions API, such as a local gateway.
func NewOpenAICompatibleProvider(name, baseURL, apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &OpenAIProvider{
		name:        name,
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}
