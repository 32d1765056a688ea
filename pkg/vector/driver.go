// Package vector provides interfaces and implementations for vector storage
// of semantic memories.
package vector

import "context"

// MetadataType is the metadata key holding a document's memory type.
const MetadataType = "type"

// Document represents a stored item with its embedding and metadata.
type Document struct {
	// ID is a unique identifier for the document (the memory id).
	ID string

	// Content is the text the embedding was computed from.
	Content string

	// Metadata carries flat string attributes such as the memory type.
	Metadata map[string]string

	// Embedding is the vector representation of the document content.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the cosine similarity to the query (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
