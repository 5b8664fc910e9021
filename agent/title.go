package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/richinex/geoassist/llm"
	"github.com/richinex/geoassist/observability"
	"github.com/richinex/geoassist/tools"
	"github.com/richinex/geoassist/transcript"
)

const titleTimeout = 15 * time.Second

// TitleDrafter names new chats with a short tool-free completion. It
// falls back to the truncated first message when the model fails.
type TitleDrafter struct {
	completer tools.Completer
	logger    *slog.Logger
}

// NewTitleDrafter creates a title drafter.
func NewTitleDrafter(completer tools.Completer, logger *slog.Logger) *TitleDrafter {
	return &TitleDrafter{completer: completer, logger: logger}
}

// Title implements transcript.Titler.
func (d *TitleDrafter) Title(ctx context.Context, firstMessage string) string {
	fallback := transcript.TruncateTitle(firstMessage)
	if strings.TrimSpace(firstMessage) == "" {
		return fallback
	}

	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	title, err := d.completer.Complete(ctx, titleInstruction, []llm.ChatMessage{llm.UserMessage(firstMessage)})
	if err != nil {
		d.logger.Warn("title drafting failed, using message prefix", "error", err)
		return fallback
	}

	title = strings.Trim(strings.TrimSpace(title), `"'.`)
	if title == "" {
		return fallback
	}
	return transcript.TruncateTitle(title)
}

// meteredCompleter counts tool-free completions.
type meteredCompleter struct {
	next    tools.Completer
	metrics *observability.Metrics
}

// MeteredCompleter wraps c so that every completion is counted as a
// tool-free model call.
func MeteredCompleter(c tools.Completer, m *observability.Metrics) tools.Completer {
	return meteredCompleter{next: c, metrics: m}
}

func (m meteredCompleter) Complete(ctx context.Context, system string, messages []llm.ChatMessage) (string, error) {
	m.metrics.ModelCalled("tool_free")
	return m.next.Complete(ctx, system, messages)
}
