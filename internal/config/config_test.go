package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.RecallLimit != 3 {
		t.Fatalf("RecallLimit = %d, want 3", cfg.RecallLimit)
	}
	if cfg.GenerationTimeout != 60*time.Second {
		t.Fatalf("GenerationTimeout = %v, want 60s", cfg.GenerationTimeout)
	}
	if cfg.MemoryProvider != "auto" {
		t.Fatalf("MemoryProvider = %q, want %q", cfg.MemoryProvider, "auto")
	}
	if cfg.ModelID != "gpt-4o-mini" {
		t.Fatalf("ModelID = %q, want %q", cfg.ModelID, "gpt-4o-mini")
	}
}

func TestLoadExplicitOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("MEMORY_RECALL_LIMIT", "5")
	t.Setenv("GENERATION_TIMEOUT", "90s")
	t.Setenv("MEMORY_PROVIDER", "inmemory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RecallLimit != 5 {
		t.Fatalf("RecallLimit = %d, want 5", cfg.RecallLimit)
	}
	if cfg.GenerationTimeout != 90*time.Second {
		t.Fatalf("GenerationTimeout = %v, want 90s", cfg.GenerationTimeout)
	}
	if cfg.MemoryProvider != "inmemory" {
		t.Fatalf("MemoryProvider = %q, want %q", cfg.MemoryProvider, "inmemory")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"negative recall limit", "MEMORY_RECALL_LIMIT", "-1"},
		{"bad provider", "MEMORY_PROVIDER", "redis"},
		{"bad responder mode", "RESPONDER_MODE", "anthropic"},
		{"short generation timeout", "GENERATION_TIMEOUT", "100ms"},
		{"garbage duration", "MEMORY_SEARCH_TIMEOUT", "soon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_API_TOKEN",
		"APP_ALLOW_ANY_ORIGIN",
		"RESPONDER_MODE",
		"MODEL_CHOICE",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"RESPONDER_HTTP_URL",
		"MEMORY_PROVIDER",
		"MEMORY_SERVICE_URL",
		"MEMORY_SERVICE_KEY",
		"MEMORY_CHROMEM_PATH",
		"EMBEDDING_MODEL",
		"DATABASE_URL",
		"MEMORY_RECALL_LIMIT",
		"MEMORY_SEARCH_TIMEOUT",
		"GENERATION_TIMEOUT",
		"PERSIST_TIMEOUT",
		"MEMORY_WRITE_TIMEOUT",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
