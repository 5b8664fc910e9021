package transcript

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/geoassist/llm"
	"github.com/richinex/geoassist/observability"
	"github.com/richinex/geoassist/storage"
)

// Titler names a new chat from its first user message.
type Titler interface {
	Title(ctx context.Context, firstMessage string) string
}

// Record is what a finished turn hands over for storage.
type Record struct {
	ChatID string
	UserID string
	// Messages are the messages produced by the turn, starting with the
	// user message that opened it.
	Messages []llm.ChatMessage
}

// Persister sanitizes and stores turn transcripts. Failures are logged
// and counted, never returned: the user already has the answer.
type Persister struct {
	store   storage.ChatStore
	titler  Titler
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewPersister creates a persister. titler may be nil, in which case new
// chats are titled from the truncated first message.
func NewPersister(store storage.ChatStore, titler Titler, logger *slog.Logger, metrics *observability.Metrics) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		store:   store,
		titler:  titler,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Finish stores the sanitized messages of rec, creating the chat first if
// it does not exist. It returns the number of messages stored.
func (p *Persister) Finish(ctx context.Context, rec Record) int {
	log := p.logger.With("chat_id", rec.ChatID, "user_id", rec.UserID)

	clean := Sanitize(rec.Messages)
	if dropped := len(rec.Messages) - len(clean); dropped > 0 {
		log.Debug("dropped unmatched tool traffic", "dropped", dropped)
	}
	if len(clean) == 0 {
		return 0
	}

	if err := p.ensureChat(ctx, rec, clean); err != nil {
		p.fail(log, "create chat", err)
		return 0
	}

	now := p.now()
	stored := make([]storage.StoredMessage, len(clean))
	for i, msg := range clean {
		stored[i] = storage.StoredMessage{
			ID:          uuid.NewString(),
			CreatedAt:   now,
			ChatMessage: msg,
		}
	}

	if err := p.store.AppendMessages(ctx, rec.ChatID, stored); err != nil {
		p.fail(log, "append messages", err)
		return 0
	}
	log.Info("transcript stored", "messages", len(stored))
	return len(stored)
}

func (p *Persister) ensureChat(ctx context.Context, rec Record, clean []llm.ChatMessage) error {
	_, err := p.store.GetChat(ctx, rec.ChatID)
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	first := ""
	for _, msg := range clean {
		if msg.Role == llm.RoleUser {
			first = msg.Content
			break
		}
	}
	title := TruncateTitle(first)
	if p.titler != nil {
		title = p.titler.Title(ctx, first)
	}
	return p.store.CreateChat(ctx, storage.Chat{ID: rec.ChatID, UserID: rec.UserID, Title: title})
}

func (p *Persister) fail(log *slog.Logger, op string, err error) {
	p.metrics.PersistFailed()
	log.Error("failed to persist transcript", "op", op, "error", err)
}

const maxTitleRunes = 60

// TruncateTitle makes a title out of a message by cutting it to a
// readable length.
func TruncateTitle(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' {
			runes = runes[:i]
			break
		}
	}
	if len(runes) > maxTitleRunes {
		return string(runes[:maxTitleRunes-3]) + "..."
	}
	if len(runes) == 0 {
		return "New chat"
	}
	return string(runes)
}
