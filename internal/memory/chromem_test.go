package memory

import (
	"context"
	"testing"

	"github.com/ent0n29/recall/internal/embeddings"
)

func newChromemTestStore(t *testing.T) *ChromemStore {
	t.Helper()
	store, err := NewChromemStore("", embeddings.NewMockEmbedder())
	if err != nil {
		t.Fatalf("NewChromemStore() error = %v", err)
	}
	return store
}

func TestChromemStoreAddAndSearch(t *testing.T) {
	store := newChromemTestStore(t)
	ctx := context.Background()

	err := store.Add(ctx, []Message{
		{Role: "user", Content: "u1 is vegetarian"},
		{Role: "assistant", Content: "Good to know!"},
	}, "u1")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	facts, err := store.Search(ctx, "u1 is vegetarian", "u1", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("len(facts) = %d, want 2", len(facts))
	}
	// The mock embedder is deterministic, so the exact text is the nearest
	// neighbor of itself.
	if facts[0].Text != "u1 is vegetarian" {
		t.Fatalf("top fact = %q, want the exact match", facts[0].Text)
	}
	if facts[0].OwnerID != "u1" || facts[0].ID == "" {
		t.Fatalf("unexpected fact identity: %+v", facts[0])
	}
}

func TestChromemStoreClampsLimitToCollectionSize(t *testing.T) {
	store := newChromemTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, []Message{{Role: "user", Content: "only one fact"}}, "u1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	facts, err := store.Search(ctx, "fact", "u1", 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("len(facts) = %d, want 1", len(facts))
	}
}

func TestChromemStoreEmptyCollection(t *testing.T) {
	store := newChromemTestStore(t)

	facts, err := store.Search(context.Background(), "anything", "nobody", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("len(facts) = %d, want 0", len(facts))
	}
}

func TestChromemStoreIsolatesOwners(t *testing.T) {
	store := newChromemTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, []Message{{Role: "user", Content: "u1 likes jazz"}}, "u1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	facts, err := store.Search(ctx, "u1 likes jazz", "u2", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("owner u2 saw %d of u1's facts", len(facts))
	}
}

func TestChromemStoreClear(t *testing.T) {
	store := newChromemTestStore(t)
	ctx := context.Background()

	if err := store.Add(ctx, []Message{{Role: "user", Content: "ephemeral fact"}}, "u1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := store.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	facts, err := store.Search(ctx, "ephemeral", "u1", 3)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("len(facts) after clear = %d, want 0", len(facts))
	}
}
