// Package llm provides LLM provider abstractions.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion, including tool calls
// - Streaming and incremental tool call assembly

package llm

import (
	"context"
)

// Provider defines the abstract interface for LLM providers.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends a completion request and waits for the full response.
	Chat(ctx context.Context, req Request) (LLMResponse, error)

	// StreamChat streams a completion. Text deltas are sent to chunks as
	// they arrive; tool calls are assembled and returned in the response
	// once the stream ends. The returned Content holds the full text.
	StreamChat(ctx context.Context, req Request, chunks chan<- string) (LLMResponse, error)
}

// emit sends a text delta unless the context is done first.
func emit(ctx context.Context, chunks chan<- string, text string) error {
	if text == "" || chunks == nil {
		return nil
	}
	select {
	case chunks <- text:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
