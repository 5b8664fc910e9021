// Package agent runs the streaming completion loop of a chat turn.
//
// Contains the loop states, the events streamed to the caller and the
// result of a turn.
package agent

import (
	"encoding/json"
	"time"

	"github.com/richinex/geoassist/llm"
	"github.com/richinex/geoassist/model"
)

// State is a state of the completion loop.
type State int

const (
	AwaitingModel State = iota
	ToolRequested
	Dispatching
	ToolResultAppended
	FinalAnswer
	StepBudgetExhausted
	Aborted
)

var stateNames = [...]string{
	AwaitingModel:       "awaiting_model",
	ToolRequested:       "tool_requested",
	Dispatching:         "dispatching",
	ToolResultAppended:  "tool_result_appended",
	FinalAnswer:         "final_answer",
	StepBudgetExhausted: "step_budget_exhausted",
	Aborted:             "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether the loop stops in s.
func (s State) Terminal() bool {
	return s == FinalAnswer || s == StepBudgetExhausted || s == Aborted
}

// Turn is one inbound chat turn.
type Turn struct {
	ChatID string
	UserID string
	// History is the prior conversation. System messages are ignored.
	History []llm.ChatMessage
	// Message is the new user message.
	Message string
	// Region is the geometry the user selected on the map, if any.
	Region json.RawMessage
	// LayerNames are the user's existing map layers.
	LayerNames  []string
	MaxAreaSqKm float64
}

// EventKind identifies a streamed event.
type EventKind string

const (
	EventToken EventKind = "token"
	EventTool  EventKind = "tool"
	EventDone  EventKind = "done"
)

// Event is streamed to the caller while the turn runs.
type Event struct {
	Kind EventKind
	// Text is set on token events.
	Text string
	// Tool is set on tool events.
	Tool *model.ToolCall
	// Result is set on the done event, before the transcript is stored.
	Result *Result
}

// Sink receives streamed events. It is called from the loop's goroutine.
type Sink func(Event)

// Result is the outcome of a turn.
type Result struct {
	State State
	// Answer is the final assistant text shown to the user.
	Answer string
	// Messages are the messages the turn produced, starting with the user
	// message, before sanitization.
	Messages  []llm.ChatMessage
	Steps     []model.Step
	ToolCalls []model.ToolCall
	Usage     llm.TokenUsage
	LLMCalls  int
	Duration  time.Duration
	// Err is set when the turn was aborted.
	Err error
}

// Success reports whether the turn produced an answer.
func (r Result) Success() bool {
	return r.State == FinalAnswer || r.State == StepBudgetExhausted
}
