// Package model provides domain types shared across packages.
package model

// Step records one model round trip within a chat turn.
type Step struct {
	Iteration int      `json:"iteration"`
	State     string   `json:"state"`
	Tools     []string `json:"tools,omitempty"`
	// TextBytes is the size of the text the model produced in this step.
	TextBytes int `json:"text_bytes"`
}

// ToolCall contains metrics about a tool invocation.
type ToolCall struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
	DurationMs uint64 `json:"duration_ms"`
	Success    bool   `json:"success"`
	ErrorType  string `json:"error_type,omitempty"`
}
