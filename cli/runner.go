// Command execution for CLI commands.
//
// Information Hiding:
// - Provider, storage and tool wiring hidden
// - HTTP server lifecycle hidden
// - Output formatting hidden

package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/richinex/geoassist/agent"
	"github.com/richinex/geoassist/api"
	"github.com/richinex/geoassist/backend"
	"github.com/richinex/geoassist/config"
	"github.com/richinex/geoassist/llm"
	"github.com/richinex/geoassist/observability"
	"github.com/richinex/geoassist/quota"
	"github.com/richinex/geoassist/storage"
	"github.com/richinex/geoassist/tools"
	"github.com/richinex/geoassist/transcript"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, settings config.Settings, logger *slog.Logger) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	provider, err := createProvider(settings)
	if err != nil {
		return err
	}

	store, err := storage.OpenSqlite(settings.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	policy, err := loadPolicy(settings.Quota.PolicyPath)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	completer := agent.MeteredCompleter(llm.NewClient(provider), metrics)
	registry, err := tools.WithDefaults(tools.Services{
		Analysis:    backend.NewAnalysisClient(settings.Services.AnalysisURL, settings.Services.Token, settings.Services.Timeout),
		Documents:   backend.NewRetrievalClient(settings.Services.RetrievalURL, settings.Services.Token, settings.Services.Timeout),
		Completer:   completer,
		Instruction: agent.Instruction,
	})
	if err != nil {
		return err
	}

	persister := transcript.NewPersister(store, agent.NewTitleDrafter(completer, logger), logger, metrics)
	loop := agent.New(agent.Config{Instruction: agent.Instruction, MaxSteps: settings.Agent.MaxSteps}, provider,
		tools.NewDispatcher(registry, settings.Agent.ToolTimeout)).
		WithFinisher(persister).
		WithLogger(logger).
		WithMetrics(metrics)

	handler := api.NewHandler(loop, quota.NewGate(store, policy), store, store, metrics, logger)

	// SSE responses stay open for the whole turn, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         settings.Server.Addr,
		Handler:      handler.Router(reg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", srv.Addr,
			"provider", provider.Name(),
			"model", provider.Model(),
			"max_steps", settings.Agent.MaxSteps,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// ListTools prints the tool declarations the model sees.
func ListTools(w io.Writer, verbose bool) error {
	registry, err := tools.WithDefaults(tools.Services{Instruction: agent.Instruction})
	if err != nil {
		return err
	}

	if verbose {
		fmt.Fprintln(w, registry.Description())
		return nil
	}

	fmt.Fprintln(w, "Available tools:")
	fmt.Fprintln(w)
	for _, meta := range registry.List() {
		fmt.Fprintf(w, "  %s\n", meta.Name)
		fmt.Fprintf(w, "    %s\n", meta.Description)
		fmt.Fprintln(w)
	}
	return nil
}

// UserOptions describes a user to provision.
type UserOptions struct {
	ID   string
	Role string
	Tier string
}

// AddUser creates or updates a user and issues a new API token, which is
// printed once and stored only as a hash.
func AddUser(ctx context.Context, w io.Writer, settings config.Settings, opts UserOptions) error {
	policy, err := loadPolicy(settings.Quota.PolicyPath)
	if err != nil {
		return err
	}
	limits, ok := policy.Resolve(opts.Role, opts.Tier)
	if !ok {
		return fmt.Errorf("no quota policy for role %q and tier %q (roles: %v)", opts.Role, opts.Tier, policy.RoleNames())
	}

	store, err := storage.OpenSqlite(settings.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if err := store.UpsertUser(ctx, storage.User{ID: opts.ID, Role: opts.Role, Tier: opts.Tier}); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	token, err := newToken()
	if err != nil {
		return err
	}
	if err := store.IssueToken(ctx, opts.ID, token); err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Fprintf(w, "User:   %s (%s/%s)\n", opts.ID, opts.Role, opts.Tier)
	fmt.Fprintf(w, "Limits: %d requests per month, %.0f km² per analysis\n", limits.MaxRequests, limits.MaxAreaSqKm)
	fmt.Fprintf(w, "Token:  %s\n", token)
	return nil
}

// Helper functions

func createProvider(settings config.Settings) (llm.Provider, error) {
	providerType, err := llm.ParseProviderType(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	apiKey, err := config.APIKeyFor(settings.LLM.Provider)
	if err != nil {
		return nil, err
	}

	return providerType.
		Model(settings.LLM.Model).
		MaxTokens(settings.LLM.MaxTokens).
		Temperature(float32(settings.LLM.Temperature)).
		BaseURL(settings.LLM.BaseURL).
		APIKey(apiKey)
}

func loadPolicy(path string) (*quota.Policy, error) {
	if path == "" {
		return quota.DefaultPolicy()
	}
	return quota.LoadPolicy(path)
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return "ga_" + hex.EncodeToString(buf), nil
}
