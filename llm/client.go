// Client - simple wrapper for tool-free completions.

package llm

import (
	"context"
)

// Client wraps a Provider for one-shot, tool-free completions such as
// report drafting and title generation.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Complete sends a tool-free request and returns just the content.
func (c *Client) Complete(ctx context.Context, system string, messages []ChatMessage) (string, error) {
	response, err := c.provider.Chat(ctx, Request{System: system, Messages: messages})
	if err != nil {
		return "", err
	}
	return response.Content, nil
}
