// Package api provides the HTTP surface of the assistant.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/richinex/geoassist/agent"
	"github.com/richinex/geoassist/observability"
	"github.com/richinex/geoassist/quota"
	"github.com/richinex/geoassist/storage"
)

// Handler serves chat turns and stored chats.
type Handler struct {
	loop    *agent.Loop
	gate    *quota.Gate
	users   storage.UserDirectory
	chats   storage.ChatStore
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(loop *agent.Loop, gate *quota.Gate, users storage.UserDirectory, chats storage.ChatStore, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		loop:    loop,
		gate:    gate,
		users:   users,
		chats:   chats,
		metrics: metrics,
		logger:  logger,
	}
}

// Router returns the HTTP routes. gatherer backs /metrics and may be nil.
func (h *Handler) Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.users, h.metrics))
		r.Post("/api/chat", h.chat)
		r.Get("/api/chats/{chatID}", h.getChat)
	})

	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
