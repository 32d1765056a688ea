// Package vectorsearch adapts a vector index to the search backend contract.
package vectorsearch

import (
	"context"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/vector"
)

// Index is the vector index contract. *vector.Index implements it.
type Index interface {
	Enabled() bool
	Search(ctx context.Context, query string, limit int, filterType string) ([]vector.Match, error)
	AddMemory(ctx context.Context, m *memory.SemanticMemory) error
	DeleteMemory(ctx context.Context, id string) error
	BatchAdd(ctx context.Context, mems []*memory.SemanticMemory) error
}

// Backend scores memories by embedding similarity.
type Backend struct {
	index Index
}

func New(index Index) *Backend {
	return &Backend{index: index}
}

// Available reports whether the wrapped index is enabled.
func (b *Backend) Available() bool {
	return b.index != nil && b.index.Enabled()
}

func (b *Backend) BackendType() string { return search.TypeVector }

// Search converts index distances into scores clamped to [0,1].
func (b *Backend) Search(ctx context.Context, query string, limit int, filterType string) ([]search.Result, error) {
	if !b.Available() {
		return nil, search.ErrUnavailable
	}

	matches, err := b.index.Search(ctx, query, limit, strings.ToLower(filterType))
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, len(matches))
	for i, m := range matches {
		results[i] = search.Result{
			MemoryID: m.ID,
			Score:    memory.Clamp01(1-m.Distance, 0),
		}
	}
	return results, nil
}

func (b *Backend) Add(ctx context.Context, m *memory.SemanticMemory) error {
	if !b.Available() {
		return search.ErrUnavailable
	}
	return b.index.AddMemory(ctx, m)
}

func (b *Backend) Delete(ctx context.Context, id string) error {
	if !b.Available() {
		return search.ErrUnavailable
	}
	return b.index.DeleteMemory(ctx, id)
}

func (b *Backend) BatchAdd(ctx context.Context, mems []*memory.SemanticMemory) (int, error) {
	if !b.Available() {
		return 0, search.ErrUnavailable
	}
	if err := b.index.BatchAdd(ctx, mems); err != nil {
		return 0, err
	}
	return len(mems), nil
}

var (
	_ search.Backend = (*Backend)(nil)
	_ Index          = (*vector.Index)(nil)
)
