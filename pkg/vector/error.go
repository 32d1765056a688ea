package vector

import "errors"

var (
	// ErrNotFound means no stored vector has the requested memory id.
	ErrNotFound = errors.New("document not found")

	// ErrEmbedding wraps failures of an embedding provider.
	ErrEmbedding = errors.New("embedding failed")

	// ErrConnection means the vector store could not be reached.
	ErrConnection = errors.New("vector store connection failed")

	// ErrDimensions means an embedding does not match the store's vector size,
	// usually after the embedding model changed.
	ErrDimensions = errors.New("embedding dimensions mismatch")

	// ErrDisabled is returned by an Index that has no embedder or driver.
	ErrDisabled = errors.New("vector index disabled")
)
