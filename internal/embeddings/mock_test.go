package embeddings

import (
	"context"
	"math"
	"testing"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	e := NewMockEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	b, err := e.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(a) != e.Dimensions() {
		t.Fatalf("len(embedding) = %d, want %d", len(a), e.Dimensions())
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d: %f vs %f", i, a[i], b[i])
		}
	}

	c, err := e.Embed(ctx, "something else")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical embeddings")
	}
}

func TestMockEmbedderNormalized(t *testing.T) {
	e := NewMockEmbedder()
	vec, err := e.Embed(context.Background(), "normalize me")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-3 {
		t.Fatalf("norm = %f, want 1", math.Sqrt(norm))
	}
}
