// Package session tracks live chat sessions and expires the inactive ones.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID             string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	TurnCount      int       `json:"turn_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionsByUser    map[string]map[string]struct{}
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionsByUser:    make(map[string]map[string]struct{}),
		inactivityTimeout: inactivityTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create starts a fresh session with a minted id.
func (m *Manager) Create(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.create(uuid.NewString(), userID))
}

// Ensure returns the tracked session with the given id, creating it when
// unknown. Chat callers may carry session ids minted elsewhere, so the
// manager adopts them instead of rejecting.
func (m *Manager) Ensure(sessionID, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return clone(s)
	}
	return clone(m.create(sessionID, userID))
}

func (m *Manager) create(sessionID, userID string) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             sessionID,
		UserID:         userID,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}
	m.sessions[s.ID] = s
	if userID != "" {
		set, ok := m.sessionsByUser[userID]
		if !ok {
			set = make(map[string]struct{})
			m.sessionsByUser[userID] = set
		}
		set[s.ID] = struct{}{}
	}
	return s
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// RecordTurn bumps the turn counter and refreshes activity.
func (m *Manager) RecordTurn(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.TurnCount++
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	m.forgetUserLocked(s)
	return clone(s), nil
}

// ListByUser returns the user's tracked sessions, active first by recency.
func (m *Manager) ListByUser(userID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.sessionsByUser[userID]
	if !ok {
		return nil
	}
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if s, ok := m.sessions[id]; ok {
			out = append(out, clone(s))
		}
	}
	return out
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
		m.forgetUserLocked(s)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func (m *Manager) forgetUserLocked(s *Session) {
	if s.UserID == "" {
		return
	}
	if set, ok := m.sessionsByUser[s.UserID]; ok {
		delete(set, s.ID)
		if len(set) == 0 {
			delete(m.sessionsByUser, s.UserID)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
