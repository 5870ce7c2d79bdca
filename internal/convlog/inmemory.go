package convlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryLog is a simple in-process conversation log for local/dev use.
type InMemoryLog struct {
	mu       sync.RWMutex
	records  map[string][]Record
	sessions map[string][]string
}

func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		records:  make(map[string][]Record),
		sessions: make(map[string][]string),
	}
}

func (l *InMemoryLog) Append(_ context.Context, record Record) (Record, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records[record.SessionID]) == 0 && record.UserID != "" {
		l.sessions[record.UserID] = append(l.sessions[record.UserID], record.SessionID)
	}
	l.records[record.SessionID] = append(l.records[record.SessionID], record)
	return record, nil
}

func (l *InMemoryLog) List(_ context.Context, sessionID string, limit int) ([]Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	arr := l.records[sessionID]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Record, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (l *InMemoryLog) Sessions(_ context.Context, userID string) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	arr := l.sessions[userID]
	if len(arr) == 0 {
		return nil, nil
	}
	out := make([]string, len(arr))
	copy(out, arr)
	return out, nil
}

func (l *InMemoryLog) Close() error { return nil }
