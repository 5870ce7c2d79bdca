package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process memory store for local/dev use.
// Every appended message becomes a fact; search ranks facts by token
// overlap with the query.
type InMemoryStore struct {
	mu    sync.RWMutex
	facts map[string][]Fact
	seen  map[string]map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		facts: make(map[string][]Fact),
		seen:  make(map[string]map[string]struct{}),
	}
}

func (s *InMemoryStore) Search(_ context.Context, query, owner string, limit int) ([]Fact, error) {
	if limit <= 0 {
		return nil, nil
	}

	queryTokens := tokenize(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ranked []Fact
	for _, f := range s.facts[owner] {
		score := overlapScore(queryTokens, tokenize(f.Text))
		if score <= 0 {
			continue
		}
		f.Score = score
		ranked = append(ranked, f)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (s *InMemoryStore) Add(_ context.Context, messages []Message, owner string) error {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	dedupe := s.seen[owner]
	if dedupe == nil {
		dedupe = make(map[string]struct{})
		s.seen[owner] = dedupe
	}

	for _, m := range messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		key := strings.Join(tokenize(text), " ")
		if _, dup := dedupe[key]; dup {
			continue
		}
		dedupe[key] = struct{}{}
		s.facts[owner] = append(s.facts[owner], Fact{
			ID:        uuid.NewString(),
			OwnerID:   owner,
			Text:      text,
			CreatedAt: now,
		})
	}
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.facts, owner)
	delete(s.seen, owner)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func overlapScore(query, fact []string) float64 {
	if len(query) == 0 || len(fact) == 0 {
		return 0
	}
	factSet := make(map[string]struct{}, len(fact))
	for _, tok := range fact {
		factSet[tok] = struct{}{}
	}
	hits := 0
	for _, tok := range query {
		if _, ok := factSet[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
