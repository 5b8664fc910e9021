// Package config provides application settings loaded from environment variables.
//
// Settings are created via Load() or New() which handle:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/geoassist/llm"
)

// Settings holds all application configuration.
type Settings struct {
	LLM      LLMConfig
	Agent    AgentConfig
	Server   ServerConfig
	Services ServicesConfig
	Storage  StorageConfig
	Quota    QuotaConfig
	LogLevel slog.Level
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
	// BaseURL points the openai provider at a compatible endpoint.
	BaseURL string
}

// AgentConfig holds completion loop configuration.
type AgentConfig struct {
	MaxSteps    int
	ToolTimeout time.Duration
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string
}

// ServicesConfig locates the remote analysis and retrieval services.
type ServicesConfig struct {
	AnalysisURL  string
	RetrievalURL string
	Token        string
	Timeout      time.Duration
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	DBPath string
}

// QuotaConfig holds the quota policy location. An empty path selects the
// built-in policy.
type QuotaConfig struct {
	PolicyPath string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// maxAgentSteps is the most tool round trips a turn may make.
const maxAgentSteps = 5

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", llm.ModelOpenAIGPT4oMini, "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", llm.ModelAnthropicSonnet4, "ANTHROPIC_API_KEY"},
	"deepseek":  {"DEEPSEEK_MODEL", llm.ModelDeepSeekV32, "DEEPSEEK_API_KEY"},
	"gemini":    {"GEMINI_MODEL", llm.ModelGeminiFlash3, "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// Load reads settings for the provider named by LLM_PROVIDER (default openai).
func Load() (Settings, error) {
	return New(getEnv("LLM_PROVIDER", "openai"))
}

// New creates settings for the specified provider, loading values from environment variables.
// Returns an error if the provider is unknown or environment variables contain invalid values.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return Settings{}, err
	}

	maxSteps, err := getEnvInt("AGENT_MAX_STEPS", 5)
	if err != nil {
		return Settings{}, err
	}

	toolTimeout, err := getEnvInt("TOOL_TIMEOUT_SECS", 120)
	if err != nil {
		return Settings{}, err
	}

	serviceTimeout, err := getEnvInt("SERVICE_TIMEOUT_SECS", 60)
	if err != nil {
		return Settings{}, err
	}

	logLevel, err := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return Settings{}, err
	}

	// Get model from environment or use default
	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			BaseURL:     os.Getenv("OPENAI_BASE_URL"),
		},
		Agent: AgentConfig{
			MaxSteps:    maxSteps,
			ToolTimeout: time.Duration(toolTimeout) * time.Second,
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Services: ServicesConfig{
			AnalysisURL:  os.Getenv("ANALYSIS_URL"),
			RetrievalURL: os.Getenv("RETRIEVAL_URL"),
			Token:        os.Getenv("SERVICE_TOKEN"),
			Timeout:      time.Duration(serviceTimeout) * time.Second,
		},
		Storage: StorageConfig{
			DBPath: getEnv("DB_PATH", "geoassist.db"),
		},
		Quota: QuotaConfig{
			PolicyPath: os.Getenv("QUOTA_POLICY_PATH"),
		},
		LogLevel: logLevel,
	}, nil
}

// Validate checks the settings needed to serve chat turns.
func (s Settings) Validate() error {
	var errs []error
	if s.Services.AnalysisURL == "" {
		errs = append(errs, errors.New("ANALYSIS_URL is required"))
	}
	if s.Services.RetrievalURL == "" {
		errs = append(errs, errors.New("RETRIEVAL_URL is required"))
	}
	if s.Agent.MaxSteps < 1 || s.Agent.MaxSteps > maxAgentSteps {
		errs = append(errs, fmt.Errorf("AGENT_MAX_STEPS must be between 1 and %d, got %d", maxAgentSteps, s.Agent.MaxSteps))
	}
	if s.Services.Timeout <= 0 {
		errs = append(errs, errors.New("SERVICE_TIMEOUT_SECS must be positive"))
	}
	if s.Storage.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	return errors.Join(errs...)
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q (supported: %s)",
			provider, strings.Join(SupportedProviders(), ", "))
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// SupportedProviders returns the supported provider names, sorted.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
