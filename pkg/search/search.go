// Package search defines the pluggable memory search backends.
//
// Exactly one backend is active at a time. It is chosen once by the factory
// in pkg/search/utils, which falls back to the keyword backend whenever the
// requested one cannot serve.
package search

import (
	"context"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Backend type names.
const (
	TypeFTS5         = "fts5"
	TypeVector       = "vector"
	TypeAPIEmbedding = "api_embedding"
)

// Result is a single search hit. Higher Score is more relevant.
type Result struct {
	MemoryID string
	Score    float64
}

// Backend searches memories by free-form text.
type Backend interface {
	// Available reports whether the backend can serve queries.
	Available() bool

	// BackendType returns one of the Type constants.
	BackendType() string

	// Search returns up to limit results ordered best-first. filterType,
	// when non-empty, restricts results to one memory type.
	Search(ctx context.Context, query string, limit int, filterType string) ([]Result, error)

	Add(ctx context.Context, m *memory.SemanticMemory) error
	Delete(ctx context.Context, id string) error

	// BatchAdd indexes mems and returns how many were accepted.
	BatchAdd(ctx context.Context, mems []*memory.SemanticMemory) (int, error)
}
