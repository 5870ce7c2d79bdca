package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the recall chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// APIToken guards /api/* routes. Empty disables auth (local dev only).
	APIToken       string
	AllowAnyOrigin bool

	SessionInactivityTimeout time.Duration

	// ResponderMode selects the completion backend: auto|openai|http|mock.
	ResponderMode    string
	ModelID          string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	ResponderHTTPURL string

	// MemoryProvider selects the long-term memory backend:
	// auto|chromem|http|inmemory|noop.
	MemoryProvider   string
	MemoryServiceURL string
	MemoryServiceKey string
	ChromemPath      string
	EmbeddingModel   string

	DatabaseURL string

	RecallLimit        int
	SearchTimeout      time.Duration
	GenerationTimeout  time.Duration
	PersistTimeout     time.Duration
	MemoryWriteTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "recall"),
		APIToken:                 envTrimmed("APP_API_TOKEN"),
		AllowAnyOrigin:           false,
		ResponderMode:            envOrDefault("RESPONDER_MODE", "auto"),
		ModelID:                  envOrDefault("MODEL_CHOICE", "gpt-4o-mini"),
		OpenAIAPIKey:             envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL:            envTrimmed("OPENAI_BASE_URL"),
		ResponderHTTPURL:         envTrimmed("RESPONDER_HTTP_URL"),
		MemoryProvider:           envOrDefault("MEMORY_PROVIDER", "auto"),
		MemoryServiceURL:         envTrimmed("MEMORY_SERVICE_URL"),
		MemoryServiceKey:         envTrimmed("MEMORY_SERVICE_KEY"),
		ChromemPath:              envTrimmed("MEMORY_CHROMEM_PATH"),
		EmbeddingModel:           envOrDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		DatabaseURL:              envTrimmed("DATABASE_URL"),
		RecallLimit:              3,
		SearchTimeout:            2 * time.Second,
		GenerationTimeout:        60 * time.Second,
		PersistTimeout:           5 * time.Second,
		MemoryWriteTimeout:       5 * time.Second,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SearchTimeout, err = durationFromEnv("MEMORY_SEARCH_TIMEOUT", cfg.SearchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.GenerationTimeout, err = durationFromEnv("GENERATION_TIMEOUT", cfg.GenerationTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PersistTimeout, err = durationFromEnv("PERSIST_TIMEOUT", cfg.PersistTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryWriteTimeout, err = durationFromEnv("MEMORY_WRITE_TIMEOUT", cfg.MemoryWriteTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecallLimit, err = intFromEnv("MEMORY_RECALL_LIMIT", cfg.RecallLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.RecallLimit < 0 {
		return Config{}, fmt.Errorf("MEMORY_RECALL_LIMIT must be >= 0")
	}
	if cfg.SearchTimeout <= 0 {
		return Config{}, fmt.Errorf("MEMORY_SEARCH_TIMEOUT must be positive")
	}
	if cfg.GenerationTimeout < time.Second {
		return Config{}, fmt.Errorf("GENERATION_TIMEOUT must be at least 1s")
	}
	if cfg.PersistTimeout <= 0 {
		return Config{}, fmt.Errorf("PERSIST_TIMEOUT must be positive")
	}
	if cfg.MemoryWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("MEMORY_WRITE_TIMEOUT must be positive")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.MemoryProvider)) {
	case "auto", "chromem", "http", "inmemory", "noop":
	default:
		return Config{}, fmt.Errorf("invalid MEMORY_PROVIDER: %q (expected auto|chromem|http|inmemory|noop)", cfg.MemoryProvider)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.ResponderMode)) {
	case "auto", "openai", "http", "mock":
	default:
		return Config{}, fmt.Errorf("invalid RESPONDER_MODE: %q (expected auto|openai|http|mock)", cfg.ResponderMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
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
	v := envTrimmed(key)
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
	v := strings.ToLower(envTrimmed(key))
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
