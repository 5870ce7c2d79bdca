package convlog

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Record stores a single user or assistant message within a session.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Log persists and retrieves conversation transcripts. Append fills in the
// record ID and timestamp when the caller leaves them zero. List returns
// records in chronological order regardless of storage order.
type Log interface {
	Append(ctx context.Context, record Record) (Record, error)
	List(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Sessions(ctx context.Context, userID string) ([]string, error)
	Close() error
}
