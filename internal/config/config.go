package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/tensai/internal/admin"
)

// Config contains all runtime settings for the lead-capture chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel       string
	LogDevelopment bool

	// DatabaseURL selects sessions and turn-log storage: blank keeps them in
	// memory, postgres:// uses PostgreSQL, sqlite:<path> or a bare path uses
	// SQLite.
	DatabaseURL string

	ConversationsDir  string
	ConversationScope string
	ContactsDir       string
	LeadStore         string

	ReconcileInterval time.Duration
	ReconcileWatch    bool
	ExtractOnTurn     bool

	InferenceMode      string
	InferenceHTTPURL   string
	InferenceTimeout   time.Duration
	InferenceMaxTokens int
	AnthropicAPIKey    string
	AnthropicModel     string
	AnthropicBaseURL   string
	BedrockRegion      string
	BedrockModel       string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	PromptFile         string

	PurgeExpiredCron  string
	PurgeExpiredAfter time.Duration
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "tensai"),
		AllowAnyOrigin:    false,
		LogLevel:          envOrDefault("LOG_LEVEL", "info"),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		ConversationsDir:  envOrDefault("CONVERSATIONS_DIR", "conversations"),
		ConversationScope: strings.ToLower(envOrDefault("CONVERSATION_SCOPE", "session")),
		ContactsDir:       envOrDefault("CONTACTS_DIR", "contacts"),
		LeadStore:         strings.ToLower(envOrDefault("LEAD_STORE", "file")),
		ReconcileWatch:    true,
		ExtractOnTurn:     true,
		InferenceMode:     envOrDefault("INFERENCE_MODE", "auto"),
		InferenceHTTPURL:  stringsTrimSpace("INFERENCE_HTTP_URL"),
		AnthropicAPIKey:   stringsTrimSpace("ANTHROPIC_API_KEY"),
		AnthropicModel:    envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		AnthropicBaseURL:  stringsTrimSpace("ANTHROPIC_BASE_URL"),
		BedrockRegion:     stringsTrimSpace("AWS_REGION"),
		// The inference profile ARN doubles as the model id on Bedrock.
		BedrockModel:       envOrDefault("BEDROCK_MODEL", stringsTrimSpace("INFERENCE_PROFILE_ARN")),
		OpenAIAPIKey:       stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIModel:        envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      stringsTrimSpace("OPENAI_BASE_URL"),
		PromptFile:         stringsTrimSpace("PROMPT_FILE"),
		PurgeExpiredCron:   stringsTrimSpace("PURGE_EXPIRED_CRON"),
		ShutdownTimeout:    15 * time.Second,
		ReconcileInterval:  10 * time.Second,
		InferenceTimeout:   60 * time.Second,
		InferenceMaxTokens: 4096,
		PurgeExpiredAfter:  30 * 24 * time.Hour,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LogDevelopment, err = boolFromEnv("LOG_DEVELOPMENT", cfg.LogDevelopment)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconcileInterval, err = durationFromEnv("RECONCILE_INTERVAL", cfg.ReconcileInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.ReconcileWatch, err = boolFromEnv("RECONCILE_WATCH", cfg.ReconcileWatch)
	if err != nil {
		return Config{}, err
	}
	cfg.ExtractOnTurn, err = boolFromEnv("EXTRACT_ON_TURN", cfg.ExtractOnTurn)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceTimeout, err = durationFromEnv("INFERENCE_TIMEOUT", cfg.InferenceTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceMaxTokens, err = intFromEnv("INFERENCE_MAX_TOKENS", cfg.InferenceMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.PurgeExpiredAfter, err = durationFromEnv("PURGE_EXPIRED_AFTER", cfg.PurgeExpiredAfter)
	if err != nil {
		return Config{}, err
	}

	switch cfg.ConversationScope {
	case "session", "global":
	default:
		return Config{}, fmt.Errorf("CONVERSATION_SCOPE must be session or global")
	}
	switch cfg.LeadStore {
	case "file", "db", "memory":
	default:
		return Config{}, fmt.Errorf("LEAD_STORE must be file, db or memory")
	}
	if cfg.ReconcileInterval < time.Second {
		return Config{}, fmt.Errorf("RECONCILE_INTERVAL must be at least 1s")
	}
	if cfg.InferenceMaxTokens <= 0 {
		return Config{}, fmt.Errorf("INFERENCE_MAX_TOKENS must be positive")
	}
	if cfg.PurgeExpiredAfter < 0 {
		return Config{}, fmt.Errorf("PURGE_EXPIRED_AFTER must be >= 0")
	}
	if err := admin.ValidateSchedule(cfg.PurgeExpiredCron); err != nil {
		return Config{}, fmt.Errorf("PURGE_EXPIRED_CRON: %w", err)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
