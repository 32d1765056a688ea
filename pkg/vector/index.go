package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

// DefaultTimeout bounds each embedding call and driver round trip.
const DefaultTimeout = 30 * time.Second

// Match is a vector search hit expressed as a distance: 0 is identical, 1 is
// orthogonal.
type Match struct {
	ID       string
	Distance float64
}

// IndexConfig configures an Index.
type IndexConfig struct {
	Embedder embeddings.Embedder
	Driver   Driver
	Logger   *slog.Logger

	// Timeout bounds each embed+driver operation. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Index combines an embedder and a driver into a memory-aware vector index.
// An Index without an embedder or driver reports itself disabled and every
// operation returns ErrDisabled.
type Index struct {
	embedder embeddings.Embedder
	driver   Driver
	logger   *slog.Logger
	timeout  time.Duration
}

// NewIndex creates a vector index.
func NewIndex(c IndexConfig) *Index {
	l := c.Logger
	if l == nil {
		l = logger.Nop()
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Index{
		embedder: c.Embedder,
		driver:   c.Driver,
		logger:   l,
		timeout:  timeout,
	}
}

// Enabled reports whether the index can serve queries.
func (x *Index) Enabled() bool {
	return x != nil && x.embedder != nil && x.driver != nil
}

// Search embeds query and returns the nearest memories as distances, best
// first. When filterType is set, results of other memory types are dropped;
// the driver is asked for extra rows to compensate.
func (x *Index) Search(ctx context.Context, query string, limit int, filterType string) ([]Match, error) {
	if !x.Enabled() {
		return nil, ErrDisabled
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	emb, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	topK := limit
	if filterType != "" {
		topK = limit * 3
	}
	results, err := x.driver.Query(ctx, emb, topK)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	matches := make([]Match, 0, min(len(results), limit))
	for _, r := range results {
		if filterType != "" && !strings.EqualFold(r.Metadata[MetadataType], filterType) {
			continue
		}
		matches = append(matches, Match{ID: r.ID, Distance: 1 - float64(r.Score)})
		if len(matches) == limit {
			break
		}
	}
	return matches, nil
}

// AddMemory embeds and stores one memory.
func (x *Index) AddMemory(ctx context.Context, m *memory.SemanticMemory) error {
	if m == nil {
		return nil
	}
	return x.BatchAdd(ctx, []*memory.SemanticMemory{m})
}

// BatchAdd embeds and stores memories in one driver call. Memories with
// blank content are skipped.
func (x *Index) BatchAdd(ctx context.Context, mems []*memory.SemanticMemory) error {
	if !x.Enabled() {
		return ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	docs := make([]Document, 0, len(mems))
	for _, m := range mems {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		emb, err := x.embedder.Embed(ctx, m.Content)
		if err != nil {
			return fmt.Errorf("%w: memory %s: %v", ErrEmbedding, m.ID, err)
		}
		docs = append(docs, Document{
			ID:        m.ID,
			Content:   m.Content,
			Metadata:  map[string]string{MetadataType: string(m.Type)},
			Embedding: emb,
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if err := x.driver.Add(ctx, docs); err != nil {
		return fmt.Errorf("vector add: %w", err)
	}
	x.logger.Debug("indexed memories", "count", len(docs))
	return nil
}

// DeleteMemory removes a memory from the index.
func (x *Index) DeleteMemory(ctx context.Context, id string) error {
	if !x.Enabled() {
		return ErrDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	if err := x.driver.Delete(ctx, []string{id}); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return nil
}

// Close closes the embedder and the driver.
func (x *Index) Close() error {
	if x == nil {
		return nil
	}
	var errs []error
	if x.embedder != nil {
		if err := x.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if x.driver != nil {
		if err := x.driver.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
