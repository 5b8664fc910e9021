// OpenAI Provider implementation using go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for OpenAI Chat Completions API
// - Streaming via go-openai library, with tool call deltas merged by index

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI and
// OpenAI-compatible endpoints.
type OpenAIProvider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	// completionTokens sends MaxCompletionTokens instead of MaxTokens.
	completionTokens bool
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(apiKey, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return &OpenAIProvider{
		name:        "openai",
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) request(req Request) openai.ChatCompletionRequest {
	r := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessages(req.System, req.Messages),
		Temperature: p.temperature,
	}
	if p.completionTokens {
		r.MaxCompletionTokens = p.maxTokens
	} else {
		r.MaxTokens = p.maxTokens
	}
	if len(req.Tools) > 0 {
		r.Tools = convertToOpenAITools(req.Tools)
		if req.NoToolCalls {
			r.ToolChoice = "none"
		}
	}
	return r
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req Request) (LLMResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.request(req))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	var toolCalls []ToolCall
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		for _, tc := range resp.Choices[0].Message.ToolCalls {
			toolCalls = append(toolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: content, ToolCalls: toolCalls, Usage: usage}, nil
}

// StreamChat streams a chat completion.
func (p *OpenAIProvider) StreamChat(ctx context.Context, req Request, chunks chan<- string) (LLMResponse, error) {
	r := p.request(req)
	r.Stream = true
	r.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, r)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var (
		out   LLMResponse
		text  strings.Builder
		calls toolCallAccumulator
	)
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.Content = text.String()
			return out, fmt.Errorf("stream recv failed: %w", err)
		}

		// Capture token usage from final chunk
		if response.Usage != nil {
			out.Usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta
		for _, tc := range delta.ToolCalls {
			calls.add(tc)
		}
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if err := emit(ctx, chunks, delta.Content); err != nil {
				out.Content = text.String()
				return out, err
			}
		}
	}

	out.Content = text.String()
	out.ToolCalls = calls.calls()
	return out, nil
}

// toolCallAccumulator merges streamed tool call fragments. The first
// fragment of a call carries its id and name; later ones only append
// argument text. Fragments are keyed by index.
type toolCallAccumulator struct {
	order []int
	parts map[int]*toolCallPart
}

type toolCallPart struct {
	id   string
	name string
	args strings.Builder
}

func (a *toolCallAccumulator) add(tc openai.ToolCall) {
	if a.parts == nil {
		a.parts = make(map[int]*toolCallPart)
	}
	idx := len(a.order)
	if tc.Index != nil {
		idx = *tc.Index
	}
	part, ok := a.parts[idx]
	if !ok {
		part = &toolCallPart{}
		a.parts[idx] = part
		a.order = append(a.order, idx)
	}
	if tc.ID != "" {
		part.id = tc.ID
	}
	if tc.Function.Name != "" {
		part.name = tc.Function.Name
	}
	part.args.WriteString(tc.Function.Arguments)
}

func (a *toolCallAccumulator) calls() []ToolCall {
	var out []ToolCall
	for _, idx := range a.order {
		part := a.parts[idx]
		args := part.args.String()
		if args == "" {
			args = "{}"
		}
		out = append(out, ToolCall{ID: part.id, Name: part.name, Arguments: []byte(args)})
	}
	return out
}

// convertToOpenAIMessages converts our messages to OpenAI format, with the
// system instruction as the leading message.
func convertToOpenAIMessages(system string, messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}

		// Handle tool calls from assistant
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}

		// Handle tool response
		if msg.ToolCallID != "" {
			oaiMsg.ToolCallID = msg.ToolCallID
		}

		result = append(result, oaiMsg)
	}
	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format.
func convertToOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

// Verify OpenAIProvider implements Provider
var _ Provider = (*OpenAIProvider)(nil)
