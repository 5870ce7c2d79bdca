package memory

import (
	"context"
	"time"
)

// Fact is a durable, owner-scoped statement distilled from past turns.
type Fact struct {
	ID        string    `json:"id,omitempty"`
	OwnerID   string    `json:"owner_id"`
	Text      string    `json:"text"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Message is a single conversational message handed to the store for
// fact distillation. Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store is the long-term memory capability. Search returns facts ranked by
// relevance, best first. Deduplication and fact extraction are the store's
// internal responsibility; callers only append.
type Store interface {
	Search(ctx context.Context, query, owner string, limit int) ([]Fact, error)
	Add(ctx context.Context, messages []Message, owner string) error
	Clear(ctx context.Context, owner string) error
	Close() error
}
