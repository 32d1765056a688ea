// Package chromem provides an embedded vector driver backed by chromem-go.
// It needs no external service, optionally persisting to a directory.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/papercomputeco/mnemo/pkg/vector"
)

// DefaultCollectionName is the default collection name for memory embeddings.
const DefaultCollectionName = "mnemo"

// Config holds configuration for the chromem driver.
type Config struct {
	// PersistDir, when set, stores the database on disk under this directory.
	// Empty keeps everything in memory.
	PersistDir string

	// Compress gzips persisted documents.
	Compress bool

	// CollectionName defaults to DefaultCollectionName.
	CollectionName string
}

// Driver implements vector.Driver on a chromem-go collection. Embeddings are
// supplied by the caller; chromem normalizes them and ranks by cosine
// similarity.
type Driver struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *slog.Logger

	// chromem rejects queries asking for more results than it holds, so
	// queries are clamped to the collection size under this lock.
	mu sync.RWMutex
}

// NewDriver opens or creates the chromem database and collection.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	name := c.CollectionName
	if name == "" {
		name = DefaultCollectionName
	}

	var (
		db  *chromem.DB
		err error
	)
	if c.PersistDir != "" {
		db, err = chromem.NewPersistentDB(c.PersistDir, c.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem db at %s: %w", c.PersistDir, err)
		}
	} else {
		db = chromem.NewDB()
	}

	// No embedding func: documents always arrive with embeddings.
	col, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting or creating collection %q: %w", name, err)
	}

	logger.Info("chromem vector driver initialized",
		"collection", name,
		"persist_dir", c.PersistDir,
		"documents", col.Count(),
	)

	return &Driver{
		db:         db,
		collection: col,
		logger:     logger,
	}, nil
}

// Add stores documents; an existing id is overwritten.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	// AddDocuments would keep both copies of a re-added id.
	if err := d.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("replacing documents: %w", err)
	}

	cdocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		cdocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		}
	}
	if err := d.collection.AddDocuments(ctx, cdocs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	d.logger.Debug("added documents to chromem", "count", len(docs))
	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	n := min(topK, d.collection.Count())
	if n == 0 {
		return nil, nil
	}

	res, err := d.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	results := make([]vector.QueryResult, len(res))
	for i, r := range res {
		results[i] = vector.QueryResult{
			Document: vector.Document{
				ID:        r.ID,
				Content:   r.Content,
				Metadata:  r.Metadata,
				Embedding: r.Embedding,
			},
			Score: r.Similarity,
		}
	}

	d.logger.Debug("queried chromem", "results", len(results))
	return results, nil
}

// Get retrieves documents by their IDs. Unknown ids are skipped.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := d.collection.GetByID(ctx, id)
		if err != nil {
			continue
		}
		docs = append(docs, vector.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  doc.Metadata,
			Embedding: doc.Embedding,
		})
	}
	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	d.logger.Debug("deleted documents from chromem", "count", len(ids))
	return nil
}

// Close releases resources held by the driver. Persistent databases write
// through on every change, so there is nothing to flush.
func (d *Driver) Close() error {
	return nil
}

var _ vector.Driver = (*Driver)(nil)
