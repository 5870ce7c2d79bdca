package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/ent0n29/recall/internal/embeddings"
)

// ChromemStore keeps long-term memory in chromem-go, a pure Go embedded
// vector database. Each owner gets its own collection so searches never
// cross user boundaries.
type ChromemStore struct {
	db          *chromem.DB
	embedder    embeddings.Embedder
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemStore builds a chromem-backed store. When path is empty the
// database lives in memory only; otherwise it is persisted on disk.
func NewChromemStore(path string, embedder embeddings.Embedder) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem store requires an embedder")
	}

	var (
		db  *chromem.DB
		err error
	)
	if strings.TrimSpace(path) == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	return &ChromemStore{
		db:          db,
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (s *ChromemStore) Search(ctx context.Context, query, owner string, limit int) ([]Fact, error) {
	if limit <= 0 {
		return nil, nil
	}

	col, err := s.collection(owner)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection size.
	if count := col.Count(); count < limit {
		limit = count
	}
	if limit == 0 {
		return nil, nil
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	facts := make([]Fact, 0, len(results))
	for _, res := range results {
		createdAt, _ := time.Parse(time.RFC3339, res.Metadata["created_at"])
		facts = append(facts, Fact{
			ID:        res.ID,
			OwnerID:   owner,
			Text:      res.Content,
			Score:     float64(res.Similarity),
			CreatedAt: createdAt,
		})
	}
	return facts, nil
}

func (s *ChromemStore) Add(ctx context.Context, messages []Message, owner string) error {
	col, err := s.collection(owner)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, m := range messages {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}

		embedding, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed message: %w", err)
		}

		doc := chromem.Document{
			ID:        uuid.NewString(),
			Content:   text,
			Embedding: embedding,
			Metadata: map[string]string{
				"owner_id":   owner,
				"role":       m.Role,
				"created_at": now.Format(time.RFC3339),
			},
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("add document: %w", err)
		}
	}
	return nil
}

func (s *ChromemStore) Clear(_ context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(collectionName(owner)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(s.collections, owner)
	return nil
}

func (s *ChromemStore) Close() error { return nil }

func (s *ChromemStore) collection(owner string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[owner]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[owner]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(collectionName(owner), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}
	s.collections[owner] = col
	return col, nil
}

func collectionName(owner string) string {
	if owner == "" {
		return "global"
	}
	return "user_" + owner
}
