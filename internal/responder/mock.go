package responder

import (
	"context"
	"fmt"
	"strings"
)

// MockResponder provides deterministic local replies when no completion
// backend is configured.
type MockResponder struct{}

func NewMockResponder() *MockResponder { return &MockResponder{} }

func (r *MockResponder) Complete(ctx context.Context, req Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return buildMockReply(req), nil
}

func buildMockReply(req Request) string {
	base := strings.TrimSpace(req.UserText)
	if base == "" {
		base = "I am listening."
	}

	if strings.Contains(req.SystemPrompt, "no known facts") {
		return fmt.Sprintf("I heard you: %s", base)
	}
	return fmt.Sprintf("I heard you: %s\nI also remember a few things about you.", base)
}
