// Package apiembed is the search backend that embeds queries and memories
// through an online embedding API and ranks by cosine similarity.
//
// Every embedding goes through embeddings.Cache, so each distinct memory text
// is sent to the API once per model.
package apiembed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/embeddings"
	"github.com/papercomputeco/mnemo/pkg/embeddings/openai"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// ScanLimit caps how many memories a single search compares against.
const ScanLimit = 200

// Config configures the API embedding backend.
type Config struct {
	// Store supplies the memories to rank.
	Store storage.MemoryStore

	// Cache persists embeddings by content hash. Optional.
	Cache storage.EmbeddingStore

	// Provider is "dashscope" (default) or "openai".
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int

	// Embedder overrides the HTTP client built from the fields above.
	Embedder embeddings.Embedder

	Logger *slog.Logger
}

// Backend ranks memories by cosine similarity of API embeddings.
type Backend struct {
	store    storage.MemoryStore
	embedder embeddings.Embedder
	model    string
	apiKey   string
	logger   *slog.Logger
}

// New creates the backend. Without an API key it is created unavailable.
func New(c Config) (*Backend, error) {
	l := c.Logger
	if l == nil {
		l = logger.Nop()
	}

	provider := c.Provider
	if provider == "" {
		provider = openai.ProviderDashScope
	}
	model := c.Model
	if model == "" {
		model = openai.DefaultModel(provider)
	}

	b := &Backend{
		store:  c.Store,
		model:  model,
		apiKey: strings.TrimSpace(c.APIKey),
		logger: l,
	}
	if b.apiKey == "" {
		return b, nil
	}

	inner := c.Embedder
	if inner == nil {
		client, err := openai.NewEmbedder(openai.EmbedderConfig{
			Provider:   provider,
			BaseURL:    c.BaseURL,
			APIKey:     b.apiKey,
			Model:      model,
			Dimensions: c.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		inner = client
	}

	cache, err := embeddings.NewCache(embeddings.CacheConfig{
		Embedder: inner,
		Model:    model,
		Store:    c.Cache,
		Logger:   l,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	b.embedder = cache
	return b, nil
}

// Available reports whether an API key is configured.
func (b *Backend) Available() bool {
	return b.apiKey != "" && b.embedder != nil && b.store != nil
}

func (b *Backend) BackendType() string { return search.TypeAPIEmbedding }

// Model returns the embedding model used for cache keys.
func (b *Backend) Model() string { return b.model }

// Search embeds query and scores up to ScanLimit live memories against it.
// Memories whose embedding fails are skipped.
func (b *Backend) Search(ctx context.Context, query string, limit int, filterType string) ([]search.Result, error) {
	if !b.Available() {
		return nil, search.ErrUnavailable
	}
	if limit <= 0 {
		limit = 10
	}

	q, err := b.embedder.Embed(ctx, query)
	if errors.Is(err, embeddings.ErrEmptyText) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	filter := storage.MemoryFilter{Limit: ScanLimit}
	if filterType != "" {
		filter.Type = memory.MemoryType(strings.ToLower(filterType))
	}
	mems, err := b.store.ListMemories(ctx, filter)
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, 0, len(mems))
	for _, m := range mems {
		v, err := b.embedder.Embed(ctx, m.Content)
		if err != nil {
			if !errors.Is(err, embeddings.ErrEmptyText) {
				b.logger.Debug("skipping memory without embedding", "id", m.ID, "error", err)
			}
			continue
		}
		results = append(results, search.Result{MemoryID: m.ID, Score: embeddings.Cosine(q, v)})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Add warms the embedding cache for m.
func (b *Backend) Add(ctx context.Context, m *memory.SemanticMemory) error {
	if !b.Available() {
		return search.ErrUnavailable
	}
	if m == nil {
		return nil
	}
	_, err := b.embedder.Embed(ctx, m.Content)
	if errors.Is(err, embeddings.ErrEmptyText) {
		return nil
	}
	return err
}

// Delete is a no-op: cached embeddings are keyed by content, not id.
func (b *Backend) Delete(context.Context, string) error { return nil }

// BatchAdd warms the cache for every memory and returns how many embedded.
func (b *Backend) BatchAdd(ctx context.Context, mems []*memory.SemanticMemory) (int, error) {
	if !b.Available() {
		return 0, search.ErrUnavailable
	}
	n := 0
	for _, m := range mems {
		if m == nil {
			continue
		}
		if _, err := b.embedder.Embed(ctx, m.Content); err == nil {
			n++
		}
	}
	return n, nil
}

// Close releases the embedding client and cache.
func (b *Backend) Close() error {
	if b.embedder == nil {
		return nil
	}
	return b.embedder.Close()
}

var _ search.Backend = (*Backend)(nil)
