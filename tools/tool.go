// Package tools provides the tools the assistant model may call.
//
// Information Hiding:
// - Argument decoding and validation hidden behind Bind
// - Tool parameters and schemas hidden in implementations
// - Registry lookup and dispatch details hidden from the completion loop
// - Error classification internalized per tool
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/richinex/geoassist/llm"
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string   `json:"name"`
	ParamType   string   `json:"param_type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	// ItemType is the element type when ParamType is "array".
	ItemType string `json:"item_type,omitempty"`
}

// ToolMetadata describes what a tool does and how to use it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Schema renders the parameters as a JSON Schema object.
func (m ToolMetadata) Schema() map[string]interface{} {
	properties := make(map[string]interface{}, len(m.Parameters))
	required := []string{}
	for _, p := range m.Parameters {
		prop := map[string]interface{}{
			"type":        p.ParamType,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.ParamType == "array" {
			itemType := p.ItemType
			if itemType == "" {
				itemType = "string"
			}
			prop["items"] = map[string]interface{}{"type": itemType}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Definition converts the metadata to the form sent to the model.
func (m ToolMetadata) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        m.Name,
		Description: m.Description,
		Parameters:  m.Schema(),
	}
}

// ToolResult represents the result of a tool execution.
// Success is determined by whether Error is nil.
type ToolResult struct {
	Output json.RawMessage `json:"output"`
	Error  error           `json:"-"` // Excluded from JSON, use MarshalJSON for custom serialization
}

// MarshalJSON renders the result as the tool message the model reads.
// Failures carry a stable errorType next to the human readable message.
func (t ToolResult) MarshalJSON() ([]byte, error) {
	if t.Error != nil {
		return json.Marshal(struct {
			Success   bool      `json:"success"`
			ErrorType ErrorCode `json:"errorType"`
			Error     string    `json:"error"`
		}{
			Success:   false,
			ErrorType: CodeOf(t.Error),
			Error:     t.Error.Error(),
		})
	}
	output := t.Output
	if len(output) == 0 {
		output = json.RawMessage("null")
	}
	return json.Marshal(struct {
		Success bool            `json:"success"`
		Output  json.RawMessage `json:"output"`
	}{
		Success: true,
		Output:  output,
	})
}

// Content returns the JSON text placed in the tool message.
func (t ToolResult) Content() string {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(b)
}

// Success returns true if the tool execution succeeded.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// SuccessResult creates a successful tool result from any JSON-encodable value.
func SuccessResult(output any) ToolResult {
	if raw, ok := output.(json.RawMessage); ok {
		return ToolResult{Output: raw}
	}
	b, err := json.Marshal(output)
	if err != nil {
		return FailureResult(fmt.Errorf("encode tool output: %w", err))
	}
	return ToolResult{Output: b}
}

// FailureResult creates a failed tool result.
func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

// Call is a bound tool invocation ready to run.
type Call func(ctx context.Context, turn TurnContext) ToolResult

// Tool is the interface that all tools must implement.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Bind decodes and validates arguments. A non-nil error means the
	// arguments do not satisfy the schema and nothing may run.
	Bind(args json.RawMessage) (Call, error)
}
