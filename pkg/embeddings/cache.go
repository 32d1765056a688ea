package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const (
	defaultCacheCounters = 1e5
	defaultCacheMaxCost  = 64 << 20
)

// CacheConfig configures a Cache.
type CacheConfig struct {
	// Embedder computes embeddings on a miss.
	Embedder Embedder

	// Model is part of the cache key, so switching models never returns
	// stale vectors.
	Model string

	// Store persists embeddings across restarts. Optional.
	Store storage.EmbeddingStore

	// MaxCost bounds the in-memory tier in bytes. Defaults to 64 MiB.
	MaxCost int64

	Logger *slog.Logger
}

// Cache is an Embedder that memoizes another Embedder by content hash. Hits
// are served from an in-memory ristretto cache first, then from the
// persistent embedding store.
type Cache struct {
	embedder Embedder
	model    string
	store    storage.EmbeddingStore
	hot      *ristretto.Cache
	logger   *slog.Logger
}

// NewCache wraps c.Embedder with a two-tier embedding cache.
func NewCache(c CacheConfig) (*Cache, error) {
	if c.Embedder == nil {
		return nil, fmt.Errorf("embedding cache requires an embedder")
	}

	maxCost := c.MaxCost
	if maxCost <= 0 {
		maxCost = defaultCacheMaxCost
	}
	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultCacheCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}

	l := c.Logger
	if l == nil {
		l = logger.Nop()
	}

	return &Cache{
		embedder: c.Embedder,
		model:    c.Model,
		store:    c.Store,
		hot:      hot,
		logger:   l,
	}, nil
}

// Hash returns the cache key for text under model: the hex sha256 of
// "model:text".
func Hash(model, text string) string {
	sum := sha256.Sum256([]byte(model + ":" + text))
	return hex.EncodeToString(sum[:])
}

// Embed returns a copy of the cached embedding for text, computing and
// storing it on a miss. Blank text returns ErrEmptyText without calling the
// embedder.
func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	key := Hash(c.model, text)
	if v, ok := c.hot.Get(key); ok {
		return slices.Clone(v.([]float32)), nil
	}

	if c.store != nil {
		entry, err := c.store.GetEmbedding(ctx, key)
		if err != nil {
			c.logger.Warn("embedding cache read failed", "error", err)
		}
		if entry != nil && len(entry.Vector) > 0 {
			c.remember(key, entry.Vector)
			return entry.Vector, nil
		}
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.remember(key, vec)
	if c.store != nil {
		err = c.store.PutEmbedding(ctx, &storage.EmbeddingEntry{
			Hash:      key,
			Model:     c.model,
			Dimension: len(vec),
			Vector:    vec,
		})
		if err != nil {
			c.logger.Warn("embedding cache write failed", "error", err)
		}
	}
	return vec, nil
}

func (c *Cache) remember(key string, vec []float32) {
	c.hot.Set(key, slices.Clone(vec), int64(len(vec)*4))
	c.hot.Wait()
}

// Close closes the in-memory tier and the wrapped embedder.
func (c *Cache) Close() error {
	c.hot.Close()
	return c.embedder.Close()
}

var _ Embedder = (*Cache)(nil)
