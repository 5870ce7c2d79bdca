// Package responder bridges the chat runtime with a completion backend.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Request is the normalized completion request.
type Request struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	TurnID       string `json:"turn_id"`
	SystemPrompt string `json:"system_prompt"`
	UserText     string `json:"user_text"`
}

// Responder produces an assistant reply for one turn. Implementations own
// retry/backoff policy; the orchestrator only applies a single bounded
// timeout through ctx.
type Responder interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Config controls responder construction.
type Config struct {
	Mode         string
	ModelID      string
	OpenAIAPIKey string
	OpenAIBase   string
	HTTPURL      string
}

func New(cfg Config) (Responder, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoResponder(cfg), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, errors.New("openai api key is required for openai mode")
		}
		return NewOpenAIResponder(cfg.OpenAIAPIKey, cfg.OpenAIBase, cfg.ModelID), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("responder HTTP url is required for http mode")
		}
		return NewHTTPResponder(cfg.HTTPURL), nil
	case "mock":
		return NewMockResponder(), nil
	default:
		return nil, fmt.Errorf("unsupported responder mode %q", cfg.Mode)
	}
}

func newAutoResponder(cfg Config) Responder {
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		primary := NewOpenAIResponder(cfg.OpenAIAPIKey, cfg.OpenAIBase, cfg.ModelID)
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewFallbackResponder(primary, NewHTTPResponder(cfg.HTTPURL))
		}
		return primary
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPResponder(cfg.HTTPURL)
	}
	return NewMockResponder()
}
