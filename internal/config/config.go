// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names, mirrored from the agent package to keep config free of
// heavier imports.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderHeuristic = "heuristic"
)

// Config holds all application configuration.
type Config struct {
	Port             string
	FrontendURL      string
	DBPath           string
	SessionTTL       time.Duration
	SessionIdleEvict time.Duration
	SweepInterval    time.Duration
	PacingFile       string
	GRPCHealthAddr   string
	LogLevel         string
	AI               AIConfig
	RateLimit        RateLimitConfig
	SSE              SSEConfig
	ConversationLog  ConversationLogConfig
}

// AIConfig selects and configures the plan and reply collaborator.
type AIConfig struct {
	Provider        string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	SearchGrounding bool
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	Timeout         time.Duration
}

// RateLimitConfig bounds AI-backed requests per user.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// SSEConfig tunes the event stream fallback.
type SSEConfig struct {
	RetryDelay        time.Duration
	KeepaliveInterval time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	geminiKey := getEnv("GEMINI_API_KEY", getEnv("API_KEY", ""))
	provider := strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "")))
	if provider == "" {
		provider = ProviderHeuristic
		if geminiKey != "" {
			provider = ProviderGemini
		}
	}

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		DBPath:           getEnv("DB_PATH", "./data/runner.db"),
		SessionTTL:       getEnvDuration("SESSION_TTL", 60*time.Minute),
		SessionIdleEvict: getEnvDuration("SESSION_IDLE_EVICT", 15*time.Minute),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", time.Minute),
		PacingFile:       getEnv("PACING_FILE", ""),
		GRPCHealthAddr:   getEnv("GRPC_HEALTH_ADDR", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AI: AIConfig{
			Provider:        provider,
			GeminiAPIKey:    geminiKey,
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
			GeminiBaseURL:   getEnv("GEMINI_BASE_URL", ""),
			SearchGrounding: getEnvBool("AI_SEARCH_GROUNDING", true),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout:         getEnvDuration("AI_TIMEOUT", 90*time.Second),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			RetryDelay:        getEnvDuration("SSE_RETRY_DELAY", 5*time.Second),
			KeepaliveInterval: getEnvDuration("SSE_KEEPALIVE_INTERVAL", 10*time.Second),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SessionIdleEvict <= 0 {
		return fmt.Errorf("SESSION_IDLE_EVICT must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	switch c.AI.Provider {
	case ProviderGemini:
		if c.AI.GeminiAPIKey == "" {
			return fmt.Errorf("AI_PROVIDER=gemini requires GEMINI_API_KEY")
		}
	case ProviderOpenAI:
		if c.AI.OpenAIAPIKey == "" {
			return fmt.Errorf("AI_PROVIDER=openai requires OPENAI_API_KEY")
		}
	case ProviderHeuristic:
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AI.Provider)
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be > 0")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// Model returns the model name of the selected provider.
func (c *Config) Model() string {
	switch c.AI.Provider {
	case ProviderGemini:
		return c.AI.GeminiModel
	case ProviderOpenAI:
		return c.AI.OpenAIModel
	}
	return ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
