// Tool dispatch.
//
// Information Hiding:
// - Name lookup, argument binding and timeouts hidden behind Dispatch
// - Every outcome, including unknown names, becomes a ToolResult

package tools

import (
	"context"
	"time"

	"github.com/richinex/geoassist/llm"
	"github.com/richinex/geoassist/model"
)

// Invocation is one tool call requested by the model and its outcome.
type Invocation struct {
	Call llm.ToolCall
	// ValidationErr is set when the call never ran because the name was
	// unknown or the arguments did not satisfy the schema.
	ValidationErr error
	Result        ToolResult
	Duration      time.Duration
}

// Message renders the invocation as the tool message appended for the model.
func (inv Invocation) Message() llm.ChatMessage {
	return llm.ToolResultMessage(inv.Call, inv.Result.Content())
}

// Stats summarizes the invocation for logs and traces.
func (inv Invocation) Stats() model.ToolCall {
	return model.ToolCall{
		ID:         inv.Call.ID,
		Name:       inv.Call.Name,
		InputSize:  len(inv.Call.Arguments),
		OutputSize: len(inv.Result.Output),
		DurationMs: uint64(inv.Duration.Milliseconds()),
		Success:    inv.Result.Success(),
		ErrorType:  string(CodeOf(inv.Result.Error)),
	}
}

// Dispatcher routes tool calls to registered tools. Each call runs at
// most once; failures are never retried.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher. A zero timeout leaves deadlines to
// the caller's context and the tools' own clients.
func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, timeout: timeout}
}

// Registry returns the registry the dispatcher routes to.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch validates and runs a single tool call.
func (d *Dispatcher) Dispatch(ctx context.Context, turn TurnContext, call llm.ToolCall) Invocation {
	start := time.Now()
	inv := Invocation{Call: call}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		inv.ValidationErr = &UnknownToolError{Name: call.Name}
		inv.Result = FailureResult(inv.ValidationErr)
		return inv
	}

	run, err := tool.Bind(call.Arguments)
	if err != nil {
		inv.ValidationErr = err
		inv.Result = FailureResult(err)
		return inv
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	inv.Result = run(ctx, turn)
	inv.Duration = time.Since(start)
	return inv
}
