// Package fts is the keyword search backend over the store's full-text
// index. It is always available and needs no external service.
package fts

import (
	"context"
	"math"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Searcher is the slice of the store the keyword backend needs.
type Searcher interface {
	SearchFTS(ctx context.Context, query string, limit int, filterType string) ([]storage.FTSHit, error)
}

// Backend ranks memories with bm25 over the segmented search text.
type Backend struct {
	store Searcher
}

// New creates a keyword backend. A nil store returns search.ErrNoStore.
func New(store Searcher) (*Backend, error) {
	if store == nil {
		return nil, search.ErrNoStore
	}
	return &Backend{store: store}, nil
}

func (b *Backend) Available() bool { return true }

func (b *Backend) BackendType() string { return search.TypeFTS5 }

// Search fetches twice the requested rows so type filtering still fills the
// page, then converts bm25 ranks into (0,1] scores: 1/(1+|rank|), with a zero
// rank scoring 1.
func (b *Backend) Search(ctx context.Context, query string, limit int, filterType string) ([]search.Result, error) {
	if limit <= 0 {
		limit = 10
	}

	hits, err := b.store.SearchFTS(ctx, query, limit*2, filterType)
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, 0, min(len(hits), limit))
	for _, h := range hits {
		if len(results) == limit {
			break
		}
		results = append(results, search.Result{MemoryID: h.ID, Score: Score(h.Rank)})
	}
	return results, nil
}

// Score converts a bm25 rank into a relevance score in (0,1].
func Score(rank float64) float64 {
	r := math.Abs(rank)
	if r == 0 {
		return 1
	}
	return 1 / (1 + r)
}

// Add is a no-op: store triggers keep the index in sync.
func (b *Backend) Add(context.Context, *memory.SemanticMemory) error { return nil }

// Delete is a no-op: store triggers keep the index in sync.
func (b *Backend) Delete(context.Context, string) error { return nil }

func (b *Backend) BatchAdd(_ context.Context, mems []*memory.SemanticMemory) (int, error) {
	return len(mems), nil
}

var _ search.Backend = (*Backend)(nil)
