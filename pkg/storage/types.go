package storage

import (
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// MemoryFilter narrows ListMemories. Zero values match everything.
type MemoryFilter struct {
	Type          memory.MemoryType
	Priority      memory.Priority
	MinImportance float64

	// IncludeSuperseded also returns memories that were replaced by another.
	IncludeSuperseded bool

	// UpdatedBefore, when set, only matches memories last updated before it.
	UpdatedBefore time.Time
	Limit         int
}

// MemoryUpdate carries a partial update. Nil fields are left unchanged.
type MemoryUpdate struct {
	Content         *string
	Subject         *string
	Predicate       *string
	Priority        *memory.Priority
	ImportanceScore *float64
	Confidence      *float64
	Tags            []string
	SupersededBy    *string
	ExpiresAt       *time.Time

	// ClearExpiry removes any expiry, making the memory persistent.
	ClearExpiry bool
}

// FTSHit is a single full-text match. Rank follows the FTS5 bm25 convention:
// more negative is better.
type FTSHit struct {
	ID   string
	Rank float64
}

// TurnRecord is a persisted conversation turn.
type TurnRecord struct {
	ID        int64
	SessionID string
	TurnIndex int
	EpisodeID string
	Turn      memory.ConversationTurn
}

// EmbeddingEntry is one cached embedding, keyed by content hash.
type EmbeddingEntry struct {
	Hash      string
	Model     string
	Dimension int
	Vector    []float32
	CreatedAt time.Time
}

// AttachmentQuery filters SearchAttachments. Zero values match everything.
type AttachmentQuery struct {
	// Text is split into words; an attachment matches when any word appears
	// in its searchable text.
	Text string

	// MimePrefix matches the start of the mime type, e.g. "image/".
	MimePrefix string
	Direction  memory.Direction
	SessionID  string
	Limit      int
}

// Stats summarizes store contents.
type Stats struct {
	Memories           int                       `json:"memories"`
	ByType             map[memory.MemoryType]int `json:"by_type"`
	ByPriority         map[memory.Priority]int   `json:"by_priority"`
	Episodes           int                       `json:"episodes"`
	Attachments        int                       `json:"attachments"`
	Turns              int                       `json:"turns"`
	PendingExtractions int                       `json:"pending_extractions"`
	CachedEmbeddings   int                       `json:"cached_embeddings"`
	FTSEnabled         bool                      `json:"fts_enabled"`
}
