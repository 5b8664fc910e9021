package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/richinex/geoassist/agent"
	"github.com/richinex/geoassist/llm"
	"github.com/richinex/geoassist/quota"
	"github.com/richinex/geoassist/storage"
)

const maxRequestBytes = 4 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type chatRequest struct {
	ChatID                 string          `json:"chatId" validate:"required,max=128"`
	Messages               []chatMessage   `json:"messages" validate:"required,min=1,dive"`
	SelectedRegionGeometry json.RawMessage `json:"selectedRegionGeometry"`
	ExistingLayerNames     []string        `json:"existingLayerNames" validate:"dive,max=256"`
}

type chatMessage struct {
	Role       string         `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Name       string         `json:"name,omitempty"`
}

func (m chatMessage) toLLM() llm.ChatMessage {
	return llm.ChatMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
}

// decodeChatRequest parses and validates the body. The last message must
// be the user's new message.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(&req); err != nil {
		return req, fmt.Errorf("invalid request: %w", err)
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != llm.RoleUser || strings.TrimSpace(last.Content) == "" {
		return req, errors.New("invalid request: the last message must be a non-empty user message")
	}
	return req, nil
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)
	log := h.logger.With("user_id", userID)

	req, err := decodeChatRequest(w, r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	log = log.With("chat_id", req.ChatID)

	uc, err := h.gate.Authorize(ctx, userID)
	if err != nil {
		h.reject(w, log, err)
		return
	}

	chat, err := h.chats.GetChat(ctx, req.ChatID)
	switch {
	case err == nil && chat.UserID != userID:
		Error(w, http.StatusNotFound, "chat not found")
		return
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		log.Error("failed to load chat", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load chat")
		return
	}

	if _, err := h.users.IncrementUsage(ctx, userID, uc.Period); err != nil {
		log.Error("failed to count request", "error", err)
		Error(w, http.StatusInternalServerError, "failed to record usage")
		return
	}

	history := make([]llm.ChatMessage, 0, len(req.Messages)-1)
	for _, m := range req.Messages[:len(req.Messages)-1] {
		history = append(history, m.toLLM())
	}
	turn := agent.Turn{
		ChatID:      req.ChatID,
		UserID:      userID,
		History:     history,
		Message:     req.Messages[len(req.Messages)-1].Content,
		Region:      req.SelectedRegionGeometry,
		LayerNames:  req.ExistingLayerNames,
		MaxAreaSqKm: uc.Limits.MaxAreaSqKm,
	}

	h.stream(w, r, turn, log)
}

// reject maps gate errors to HTTP statuses.
func (h *Handler) reject(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		permErr  *quota.PermissionResolutionError
		quotaErr *quota.QuotaExceededError
	)
	switch {
	case errors.As(err, &quotaErr):
		h.metrics.Rejected("quota")
		log.Info("turn rejected", "reason", "quota", "usage", quotaErr.Usage, "limit", quotaErr.Limit)
		Error(w, http.StatusTooManyRequests, quotaErr.Error())
	case errors.As(err, &permErr):
		h.metrics.Rejected("permission")
		log.Warn("turn rejected", "reason", "permission", "error", err)
		Error(w, http.StatusForbidden, "no permissions are configured for this account")
	default:
		log.Error("quota check failed", "error", err)
		Error(w, http.StatusInternalServerError, "failed to check quota")
	}
}

// Server-sent event payloads.
type (
	tokenEvent struct {
		Text string `json:"text"`
	}
	toolEvent struct {
		Name      string `json:"name"`
		Success   bool   `json:"success"`
		ErrorType string `json:"errorType,omitempty"`
	}
	doneEvent struct {
		ChatID    string `json:"chatId"`
		State     string `json:"state"`
		ToolCalls int    `json:"toolCalls"`
	}
	errorEvent struct {
		Error string `json:"error"`
	}
)

const sseWriteTimeout = 120 * time.Second

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, turn agent.Turn, log *slog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	rc := http.NewResponseController(w)
	send := func(event string, v any) {
		if err := writeSSE(w, event, v); err != nil {
			log.Debug("failed to write event", "event", event, "error", err)
			return
		}
		flusher.Flush()
		if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			log.Debug("failed to reset write deadline", "error", err)
		}
	}

	// The done event arrives before the transcript is stored.
	h.loop.Run(r.Context(), turn, func(ev agent.Event) {
		switch ev.Kind {
		case agent.EventToken:
			send("token", tokenEvent{Text: ev.Text})
		case agent.EventTool:
			send("tool", toolEvent{Name: ev.Tool.Name, Success: ev.Tool.Success, ErrorType: ev.Tool.ErrorType})
		case agent.EventDone:
			res := ev.Result
			switch {
			case res.Success():
				send("done", doneEvent{ChatID: turn.ChatID, State: res.State.String(), ToolCalls: len(res.ToolCalls)})
			case agent.IsCancelled(*res):
				// The client is gone.
			default:
				send("error", errorEvent{Error: "the assistant could not complete this request"})
			}
		}
	})
}

func writeSSE(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

type chatResponse struct {
	Chat     storage.Chat            `json:"chat"`
	Messages []storage.StoredMessage `json:"messages"`
}

func (h *Handler) getChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := UserIDFromContext(ctx)
	chatID := chi.URLParam(r, "chatID")

	chat, err := h.chats.GetChat(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && chat.UserID != userID) {
		Error(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load chat", "chat_id", chatID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load chat")
		return
	}

	messages, err := h.chats.LoadMessages(ctx, chatID)
	if err != nil {
		h.logger.Error("failed to load messages", "chat_id", chatID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	JSON(w, http.StatusOK, chatResponse{Chat: chat, Messages: messages})
}
