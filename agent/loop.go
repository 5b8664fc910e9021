// Completion loop.
//
// The model decides between calling tools and answering; the loop treats
// that decision as input to an explicit state machine:
//
//	AwaitingModel -> ToolRequested -> Dispatching -> ToolResultAppended -> AwaitingModel
//	AwaitingModel -> FinalAnswer
//	AwaitingModel -> StepBudgetExhausted (after MaxSteps tool round trips)
//	any           -> Aborted (model failure or cancellation)
//
// Information Hiding:
// - Token streaming and tool call assembly hidden
// - Repeated failure bookkeeping hidden
// - Transcript hand-off hidden

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/richinex/geoassist/llm"
	"github.com/richinex/geoassist/model"
	"github.com/richinex/geoassist/observability"
	"github.com/richinex/geoassist/tools"
	"github.com/richinex/geoassist/transcript"
)

// Finisher receives the turn's messages once the loop stops.
type Finisher interface {
	Finish(ctx context.Context, rec transcript.Record) int
}

// Loop runs chat turns against a model and a set of tools.
type Loop struct {
	config     Config
	provider   llm.Provider
	dispatcher *tools.Dispatcher
	finisher   Finisher
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a completion loop.
func New(config Config, provider llm.Provider, dispatcher *tools.Dispatcher) *Loop {
	return &Loop{
		config:     config,
		provider:   provider,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
}

// WithFinisher sets where transcripts go when a turn ends.
func (l *Loop) WithFinisher(f Finisher) *Loop {
	l.finisher = f
	return l
}

// WithLogger sets the logger.
func (l *Loop) WithLogger(logger *slog.Logger) *Loop {
	l.logger = logger
	return l
}

// WithMetrics enables Prometheus metrics.
func (l *Loop) WithMetrics(m *observability.Metrics) *Loop {
	l.metrics = m
	return l
}

// run holds the mutable state of one turn.
type run struct {
	state        State
	conversation []llm.ChatMessage
	produced     []llm.ChatMessage
	failed       map[string]error
	rounds       int
	result       Result
}

// Run executes one turn. Tokens and tool events are passed to sink as they
// happen, ending with one done event; sink may be nil. The finisher, if
// any, is called exactly once after the done event and before Run
// returns, whatever the outcome.
func (l *Loop) Run(ctx context.Context, turn Turn, sink Sink) Result {
	start := time.Now()
	log := l.logger.With("chat_id", turn.ChatID, "user_id", turn.UserID)

	user := llm.UserMessage(turn.Message)
	r := &run{
		state:        AwaitingModel,
		conversation: append(stripSystem(turn.History), user),
		produced:     []llm.ChatMessage{user},
		failed:       make(map[string]error),
	}

	emit := func(ev Event) {
		if sink != nil && ctx.Err() == nil {
			sink(ev)
		}
	}

	for !r.state.Terminal() {
		if err := ctx.Err(); err != nil {
			r.abort(fmt.Errorf("turn cancelled: %w", err))
			break
		}

		forced := r.rounds >= l.config.maxSteps()
		req := llm.Request{
			System:   l.config.Instruction,
			Messages: r.conversation,
			Tools:    l.dispatcher.Registry().Definitions(),
		}
		if forced {
			req.System += budgetNote
			req.NoToolCalls = true
		}

		resp, err := l.stream(ctx, req, emit)
		r.result.LLMCalls++
		l.metrics.ModelCalled("loop")
		addUsage(&r.result.Usage, resp.Usage)
		if err != nil && forced && ctx.Err() == nil {
			log.Warn("final call after step budget failed, using fallback answer",
				"rounds", r.rounds, "error", err)
			r.answer("", StepBudgetExhausted, emit)
			break
		}
		if err != nil {
			r.abort(fmt.Errorf("model call failed: %w", err))
			break
		}

		switch {
		case forced:
			if len(resp.ToolCalls) > 0 {
				log.Warn("suppressed tool calls after step budget",
					"calls", len(resp.ToolCalls), "rounds", r.rounds)
			}
			r.answer(resp.Content, StepBudgetExhausted, emit)
		case len(resp.ToolCalls) == 0:
			r.answer(resp.Content, FinalAnswer, emit)
		default:
			r.state = ToolRequested
			r.rounds++
			l.dispatchAll(ctx, turn, r, resp, emit, log)
		}
	}

	r.result.State = r.state
	r.result.Messages = r.produced
	r.result.Duration = time.Since(start)

	log.Info("turn finished",
		"state", r.state.String(),
		"rounds", r.rounds,
		"llm_calls", r.result.LLMCalls,
		"tool_calls", len(r.result.ToolCalls),
		"duration", r.result.Duration.Round(time.Millisecond),
	)
	if r.result.Err != nil {
		log.Error("turn aborted", "error", r.result.Err)
	}
	l.metrics.TurnFinished(r.state.String(), r.result.Duration)

	// The caller learns the outcome before the transcript is stored.
	emit(Event{Kind: EventDone, Result: &r.result})

	if l.finisher != nil {
		l.finisher.Finish(context.WithoutCancel(ctx), transcript.Record{
			ChatID:   turn.ChatID,
			UserID:   turn.UserID,
			Messages: r.produced,
		})
	}
	return r.result
}

// dispatchAll runs the requested tools one after another and appends their
// results. If the turn is cancelled midway the remaining calls stay
// unanswered and are removed by sanitization.
func (l *Loop) dispatchAll(ctx context.Context, turn Turn, r *run, resp llm.LLMResponse, emit func(Event), log *slog.Logger) {
	assistant := llm.ChatMessage{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
	r.conversation = append(r.conversation, assistant)
	r.produced = append(r.produced, assistant)

	r.state = Dispatching
	names := make([]string, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		if err := ctx.Err(); err != nil {
			r.abort(fmt.Errorf("turn cancelled during dispatch: %w", err))
			return
		}

		tc := tools.TurnContext{
			Region:      turn.Region,
			LayerNames:  turn.LayerNames,
			MaxAreaSqKm: turn.MaxAreaSqKm,
			History:     slices.Clone(r.conversation),
		}
		inv := l.invoke(ctx, tc, call, r.failed)

		stats := inv.Stats()
		l.metrics.ToolInvoked(call.Name, stats.Success, stats.ErrorType, inv.Duration)
		log.Info("tool invoked",
			"tool", call.Name,
			"success", stats.Success,
			"error_type", stats.ErrorType,
			"duration", inv.Duration.Round(time.Millisecond),
		)

		msg := inv.Message()
		r.conversation = append(r.conversation, msg)
		r.produced = append(r.produced, msg)
		r.result.ToolCalls = append(r.result.ToolCalls, stats)
		names = append(names, call.Name)
		emit(Event{Kind: EventTool, Tool: &stats})
	}

	r.state = ToolResultAppended
	r.result.Steps = append(r.result.Steps, model.Step{
		Iteration: r.rounds,
		State:     r.state.String(),
		Tools:     names,
		TextBytes: len(resp.Content),
	})
	r.state = AwaitingModel
}

// invoke dispatches call unless the same tool already failed in this turn.
// Calls rejected before running (unknown name, bad arguments) do not
// count as failures, so the model can correct them.
func (l *Loop) invoke(ctx context.Context, tc tools.TurnContext, call llm.ToolCall, failed map[string]error) tools.Invocation {
	if prev, ok := failed[call.Name]; ok {
		return tools.Invocation{
			Call:   call,
			Result: tools.FailureResult(&tools.RepeatedFailureError{Tool: call.Name, Prev: prev}),
		}
	}

	inv := l.dispatcher.Dispatch(ctx, tc, call)
	if !inv.Result.Success() && inv.ValidationErr == nil {
		failed[call.Name] = inv.Result.Error
	}
	return inv
}

type streamResult struct {
	resp llm.LLMResponse
	err  error
}

// stream runs one streamed model call, forwarding text deltas as token
// events until the provider closes the stream.
func (l *Loop) stream(ctx context.Context, req llm.Request, emit func(Event)) (llm.LLMResponse, error) {
	chunks := make(chan string, 64)
	done := make(chan streamResult, 1)
	go func() {
		defer close(chunks)
		resp, err := l.provider.StreamChat(ctx, req, chunks)
		done <- streamResult{resp: resp, err: err}
	}()

	for chunk := range chunks {
		emit(Event{Kind: EventToken, Text: chunk})
	}

	res := <-done
	return res.resp, res.err
}

func (r *run) answer(text string, state State, emit func(Event)) {
	if strings.TrimSpace(text) == "" {
		text = emptyAnswerFallback
		if state == StepBudgetExhausted {
			text = budgetFallback
		}
		emit(Event{Kind: EventToken, Text: text})
	}
	msg := llm.AssistantMessage(text)
	r.conversation = append(r.conversation, msg)
	r.produced = append(r.produced, msg)
	r.result.Answer = text
	r.result.Steps = append(r.result.Steps, model.Step{
		Iteration: r.rounds + 1,
		State:     state.String(),
		TextBytes: len(text),
	})
	r.state = state
}

func (r *run) abort(err error) {
	r.result.Err = err
	r.state = Aborted
}

// stripSystem drops system messages from caller-supplied history; the
// instruction travels separately in every request.
func stripSystem(history []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role != llm.RoleSystem {
			out = append(out, msg)
		}
	}
	return out
}

func addUsage(total *llm.TokenUsage, usage *llm.TokenUsage) {
	if usage == nil {
		return
	}
	total.PromptTokens += usage.PromptTokens
	total.CompletionTokens += usage.CompletionTokens
	total.TotalTokens += usage.TotalTokens
}

// IsCancelled reports whether an aborted result was caused by the caller
// going away rather than a model failure.
func IsCancelled(res Result) bool {
	return errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)
}
