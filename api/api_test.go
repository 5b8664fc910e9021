//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/richinex/geoassist/agent"
	"github.com/richinex/geoassist/llm"
	"github.com/richinex/geoassist/observability"
	"github.com/richinex/geoassist/quota"
	"github.com/richinex/geoassist/storage"
	"github.com/richinex/geoassist/tools"
	"github.com/richinex/geoassist/transcript"
)

type answeringProvider struct {
	mu       sync.Mutex
	answer   string
	requests []llm.Request
}

func (p *answeringProvider) Name() string  { return "fake" }
func (p *answeringProvider) Model() string { return "fake-1" }

func (p *answeringProvider) Chat(ctx context.Context, req llm.Request) (llm.LLMResponse, error) {
	return p.StreamChat(ctx, req, nil)
}

func (p *answeringProvider) StreamChat(ctx context.Context, req llm.Request, chunks chan<- string) (llm.LLMResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if chunks != nil {
		chunks <- p.answer
	}
	return llm.LLMResponse{Content: p.answer}, nil
}

func (p *answeringProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type fixture struct {
	store    *storage.InMemoryStorage
	provider *answeringProvider
	metrics  *observability.Metrics
	registry *prometheus.Registry
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTitler(t, nil)
}

// titlerFunc adapts a function to transcript.Titler.
type titlerFunc func(ctx context.Context, firstMessage string) string

func (f titlerFunc) Title(ctx context.Context, firstMessage string) string {
	return f(ctx, firstMessage)
}

func newFixtureWithTitler(t *testing.T, titler transcript.Titler) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := storage.NewInMemoryStorage()
	for _, u := range []storage.User{
		{ID: "u1", Role: "analyst", Tier: "free"},
		{ID: "u2", Role: "analyst", Tier: "pro"},
		{ID: "u3", Role: "guest", Tier: "free"},
	} {
		if err := store.UpsertUser(ctx, u); err != nil {
			t.Fatal(err)
		}
		if err := store.IssueToken(ctx, u.ID, "token-"+u.ID); err != nil {
			t.Fatal(err)
		}
	}

	policy, err := quota.DefaultPolicy()
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	provider := &answeringProvider{answer: "The mean NDVI is 0.61."}
	loop := agent.New(agent.Config{Instruction: "be helpful"}, provider, tools.NewDispatcher(tools.NewRegistry(), 0)).
		WithLogger(logger).
		WithMetrics(metrics).
		WithFinisher(transcript.NewPersister(store, titler, logger, metrics))

	h := NewHandler(loop, quota.NewGate(store, policy), store, store, metrics, logger)
	return &fixture{
		store:    store,
		provider: provider,
		metrics:  metrics,
		registry: reg,
		router:   h.Router(reg),
	}
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const validChat = `{
	"chatId": "c1",
	"messages": [
		{"role": "system", "content": "you are a pirate"},
		{"role": "user", "content": "how green is my area?"}
	],
	"selectedRegionGeometry": {"type":"Polygon","coordinates":[[[0,0],[0.01,0],[0.01,0.01],[0,0.01],[0,0]]]},
	"existingLayerNames": ["ndvi_2023"]
}`

func TestChatRequiresToken(t *testing.T) {
	f := newFixture(t)

	for _, token := range []string{"", "not-a-token"} {
		w := f.do(http.MethodPost, "/api/chat", token, validChat)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d", token, w.Code)
		}
	}
	if f.provider.calls() != 0 {
		t.Error("model called without authentication")
	}
	if got := testutil.ToFloat64(f.metrics.RejectionsTotal.WithLabelValues("authentication")); got != 2 {
		t.Errorf("authentication rejections = %v", got)
	}
}

func TestChatQuotaExceededBeforeModel(t *testing.T) {
	f := newFixture(t)
	f.store.SetUsage("u1", quota.Period(time.Now()), 50)

	w := f.do(http.MethodPost, "/api/chat", "token-u1", validChat)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if f.provider.calls() != 0 {
		t.Error("model called for an over-quota user")
	}
	if n, _ := f.store.GetUsage(context.Background(), "u1", quota.Period(time.Now())); n != 50 {
		t.Errorf("usage changed to %d", n)
	}
}

func TestChatUnknownRoleIsForbidden(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/chat", "token-u3", validChat)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d", w.Code)
	}
	if f.provider.calls() != 0 {
		t.Error("model called for an unresolved user")
	}
}

func TestChatRejectsInvalidBodies(t *testing.T) {
	f := newFixture(t)

	bodies := map[string]string{
		"not json":          `{`,
		"no chat id":        `{"messages":[{"role":"user","content":"hi"}]}`,
		"no messages":       `{"chatId":"c1","messages":[]}`,
		"bad role":          `{"chatId":"c1","messages":[{"role":"wizard","content":"hi"}]}`,
		"last is assistant": `{"chatId":"c1","messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"yo"}]}`,
		"empty user text":   `{"chatId":"c1","messages":[{"role":"user","content":"  "}]}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			if w := f.do(http.MethodPost, "/api/chat", "token-u1", body); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d", w.Code)
			}
		})
	}
}

func TestChatStreamsAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	w := f.do(http.MethodPost, "/api/chat", "token-u1", validChat)

	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("status %d, content type %q", w.Code, w.Header().Get("Content-Type"))
	}
	body := w.Body.String()
	if !strings.Contains(body, "event: token\ndata: {\"text\":\"The mean NDVI is 0.61.\"}") {
		t.Errorf("token event missing: %s", body)
	}
	if !strings.Contains(body, `event: done`) || !strings.Contains(body, `"state":"final_answer"`) {
		t.Errorf("done event missing: %s", body)
	}

	req := f.provider.requests[0]
	if req.System != "be helpful" || len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Errorf("model request = %+v", req)
	}

	if n, _ := f.store.GetUsage(ctx, "u1", quota.Period(time.Now())); n != 1 {
		t.Errorf("usage = %d", n)
	}

	chat, err := f.store.GetChat(ctx, "c1")
	if err != nil || chat.UserID != "u1" || chat.Title != "how green is my area?" {
		t.Errorf("chat = %+v, %v", chat, err)
	}

	g := f.do(http.MethodGet, "/api/chats/c1", "token-u1", "")
	if g.Code != http.StatusOK {
		t.Fatalf("get status = %d", g.Code)
	}
	var got chatResponse
	if err := json.NewDecoder(g.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 2 || got.Messages[1].Content != "The mean NDVI is 0.61." {
		t.Errorf("stored messages = %+v", got.Messages)
	}
}

func TestChatDoneEventPrecedesPersistence(t *testing.T) {
	w := httptest.NewRecorder()
	var bodyAtTitle string
	f := newFixtureWithTitler(t, titlerFunc(func(_ context.Context, first string) string {
		bodyAtTitle = w.Body.String()
		return "Greenness"
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(validChat))
	req.Header.Set("Authorization", "Bearer token-u1")
	f.router.ServeHTTP(w, req)

	if !strings.Contains(bodyAtTitle, "event: done") {
		t.Errorf("done event not written before the chat was titled: %q", bodyAtTitle)
	}
	if chat, err := f.store.GetChat(context.Background(), "c1"); err != nil || chat.Title != "Greenness" {
		t.Errorf("chat = %+v, %v", chat, err)
	}
}

func TestChatOwnedByAnotherUser(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodPost, "/api/chat", "token-u1", validChat); w.Code != http.StatusOK {
		t.Fatalf("setup status = %d", w.Code)
	}

	if w := f.do(http.MethodPost, "/api/chat", "token-u2", validChat); w.Code != http.StatusNotFound {
		t.Errorf("post status = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/chats/c1", "token-u2", ""); w.Code != http.StatusNotFound {
		t.Errorf("get status = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/chats/missing", "token-u1", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing chat status = %d", w.Code)
	}
	if f.provider.calls() != 1 {
		t.Errorf("model called %d times", f.provider.calls())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/api/chat", "token-u1", validChat)

	if w := f.do(http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}
	w := f.do(http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `geoassist_turns_total{outcome="final_answer"} 1`) {
		t.Errorf("metrics status %d body %s", w.Code, w.Body)
	}
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	var got map[string]string
	if err := json.NewDecoder(w.Result().Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}
