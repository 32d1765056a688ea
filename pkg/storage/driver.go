// Package storage defines the persistence contracts of the memory engine.
//
// The interfaces are split by entity so each component can depend on the
// narrowest slice of the store it needs. Implementations must honour the
// degradation contract: once closed, reads return empty results and writes
// are silent no-ops, never errors.
package storage

import (
	"context"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// MemoryStore persists semantic memories and serves keyword search over them.
type MemoryStore interface {
	// SaveMemory inserts or fully replaces a memory by id.
	SaveMemory(ctx context.Context, m *memory.SemanticMemory) error

	// GetMemory returns a memory and bumps its access count and
	// last-accessed time.
	GetMemory(ctx context.Context, id string) (*memory.SemanticMemory, error)

	// PeekMemory returns a memory without touching its access statistics.
	PeekMemory(ctx context.Context, id string) (*memory.SemanticMemory, error)

	// UpdateMemory applies the non-nil fields of u to the memory with the
	// given id. Returns false if no such memory exists.
	UpdateMemory(ctx context.Context, id string, u MemoryUpdate) (bool, error)

	// DeleteMemory removes a memory. Returns false if it did not exist.
	DeleteMemory(ctx context.Context, id string) (bool, error)

	ListMemories(ctx context.Context, f MemoryFilter) ([]*memory.SemanticMemory, error)
	LoadAllMemories(ctx context.Context) ([]*memory.SemanticMemory, error)

	// FindSimilar returns the newest live memory with the given subject and
	// predicate, compared case-insensitively, or nil.
	FindSimilar(ctx context.Context, subject, predicate string) (*memory.SemanticMemory, error)

	BumpAccess(ctx context.Context, ids []string) error

	// SearchFTS runs a sanitized full-text query. Lower Rank is better.
	SearchFTS(ctx context.Context, query string, limit int, filterType string) ([]FTSHit, error)
	RebuildFTSIndex(ctx context.Context) error

	// CleanupExpired deletes memories whose expiry has passed and returns
	// how many were removed.
	CleanupExpired(ctx context.Context) (int, error)
	CountMemories(ctx context.Context) (int, error)
}

// EpisodeStore persists episodic summaries.
type EpisodeStore interface {
	SaveEpisode(ctx context.Context, e *memory.Episode) error
	GetEpisode(ctx context.Context, id string) (*memory.Episode, error)
	UpdateEpisodeLinks(ctx context.Context, id string, memoryIDs []string) error
	SearchEpisodes(ctx context.Context, entity string, limit int) ([]*memory.Episode, error)
	RecentEpisodes(ctx context.Context, days, limit int) ([]*memory.Episode, error)
}

// ScratchpadStore persists the per-user working memory.
type ScratchpadStore interface {
	// GetScratchpad returns nil when the user has no scratchpad yet.
	GetScratchpad(ctx context.Context, userID string) (*memory.Scratchpad, error)
	SaveScratchpad(ctx context.Context, s *memory.Scratchpad) error
}

// TurnStore persists raw conversation turns.
type TurnStore interface {
	SaveTurn(ctx context.Context, sessionID string, index int, turn memory.ConversationTurn) error
	ListTurns(ctx context.Context, sessionID string) ([]TurnRecord, error)

	// MaxTurnIndex returns -1 when the session has no turns.
	MaxTurnIndex(ctx context.Context, sessionID string) (int, error)
	LinkTurnsToEpisode(ctx context.Context, sessionID, episodeID string) (int, error)
}

// QueueStore is the durable extraction work queue.
type QueueStore interface {
	EnqueueExtraction(ctx context.Context, item *memory.ExtractionItem) (int64, error)

	// DequeueExtraction atomically claims up to batchSize pending items.
	// A claimed item is never handed to another consumer.
	DequeueExtraction(ctx context.Context, batchSize int) ([]*memory.ExtractionItem, error)

	// CompleteExtraction marks a claimed item done or failed. Completion is
	// terminal.
	CompleteExtraction(ctx context.Context, id int64, success bool) error
}

// EmbeddingStore is the persistent side of the embedding cache.
type EmbeddingStore interface {
	// GetEmbedding returns nil when the hash is not cached.
	GetEmbedding(ctx context.Context, hash string) (*EmbeddingEntry, error)
	PutEmbedding(ctx context.Context, e *EmbeddingEntry) error
}

// AttachmentStore persists media records.
type AttachmentStore interface {
	SaveAttachment(ctx context.Context, a *memory.Attachment) error
	GetAttachment(ctx context.Context, id string) (*memory.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) (bool, error)
	ListAttachments(ctx context.Context) ([]*memory.Attachment, error)
	SearchAttachments(ctx context.Context, q AttachmentQuery) ([]*memory.Attachment, error)
}

// Driver is the complete persistent store.
type Driver interface {
	MemoryStore
	EpisodeStore
	ScratchpadStore
	TurnStore
	QueueStore
	EmbeddingStore
	AttachmentStore

	Stats(ctx context.Context) (*Stats, error)

	// Close closes the store and releases any resources. Calls made after
	// Close degrade to empty results.
	Close() error
}
