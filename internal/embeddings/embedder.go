// Package embeddings converts text into vectors for similarity search.
package embeddings

import "context"

// Embedder turns a piece of text into a vector embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
