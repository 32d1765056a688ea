// Package embeddings provides text embedding clients and a content-hash
// cache in front of them.
package embeddings

import "context"

// Embedder turns memory content and search queries into vectors. Every
// vector an Embedder returns belongs to the caller.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close drops idle connections and any cache the embedder keeps.
	Close() error
}
