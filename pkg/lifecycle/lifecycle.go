// Package lifecycle keeps the memory store healthy: it drains the extraction
// queue, merges duplicates, decays stale memories, prunes empty attachments,
// has the thinker review memory quality and regenerates the MEMORY.md
// digest.
//
// Every pass is an explicit synchronous call and safe to repeat. Scheduling
// is up to the host.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Store is the slice of the persistent store lifecycle passes touch.
type Store interface {
	storage.MemoryStore
	storage.AttachmentStore
	storage.QueueStore
}

// SaveFunc persists one extracted item and returns the id of the memory it
// created or evolved.
type SaveFunc func(ctx context.Context, item extractor.Item, episodeID string) (string, error)

// Config configures a Manager.
type Config struct {
	Store Store

	// Extractor drives queue processing. Optional.
	Extractor *extractor.Extractor

	// Thinker reviews and synthesizes memories. Defaults to the extractor's
	// thinker.
	Thinker brain.Thinker

	// Timeout bounds each thinker call. Defaults to brain.DefaultTimeout.
	Timeout time.Duration

	// Backend receives every live memory on SyncVectors. Optional.
	Backend search.Backend

	// IdentityDir holds the MEMORY.md digest. Empty disables the digest.
	IdentityDir string

	// Save persists extracted items. Defaults to a plain save that evolves
	// the subject/predicate match for updates.
	Save SaveFunc

	Logger *slog.Logger

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Manager runs lifecycle passes.
type Manager struct {
	store       Store
	extractor   *extractor.Extractor
	thinker     brain.Thinker
	timeout     time.Duration
	backend     search.Backend
	identityDir string
	save        SaveFunc
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a lifecycle Manager.
func New(c Config) (*Manager, error) {
	if c.Store == nil {
		return nil, errors.New("lifecycle manager requires a store")
	}

	m := &Manager{
		store:       c.Store,
		extractor:   c.Extractor,
		thinker:     c.Thinker,
		timeout:     c.Timeout,
		backend:     c.Backend,
		identityDir: c.IdentityDir,
		save:        c.Save,
		logger:      c.Logger,
		now:         c.Now,
	}
	if m.thinker == nil && m.extractor != nil {
		m.thinker = m.extractor.Thinker()
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.save == nil {
		m.save = m.saveItem
	}
	return m, nil
}

// Report summarizes one ConsolidateDaily run.
type Report struct {
	StartedAt         time.Time    `json:"started_at"`
	FinishedAt        time.Time    `json:"finished_at"`
	Extracted         int          `json:"unextracted_processed"`
	DuplicatesRemoved int          `json:"duplicates_removed"`
	Decayed           int          `json:"memories_decayed"`
	StaleAttachments  int          `json:"stale_attachments_cleaned"`
	Review            ReviewReport `json:"llm_review"`
	Synthesized       int          `json:"experience_synthesized"`
	DigestWritten     bool         `json:"digest_written"`
	VectorsSynced     int          `json:"vectors_synced"`
}

// ConsolidateDaily runs every pass in order: queue, dedup, decay, stale
// attachments, review, synthesis, digest and vector sync. A failing pass is
// logged and does not stop the ones after it; all failures are returned
// joined.
func (m *Manager) ConsolidateDaily(ctx context.Context) (*Report, error) {
	r := &Report{StartedAt: m.now().UTC()}
	var errs []error
	step := func(name string, err error) {
		if err != nil {
			m.logger.Error("consolidation step failed", "step", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	var err error
	r.Extracted, err = m.ProcessUnextracted(ctx, DefaultQueueBatch)
	step("process queue", err)

	r.DuplicatesRemoved, err = m.DeduplicateBatch(ctx)
	step("deduplicate", err)

	r.Decayed, err = m.ComputeDecay(ctx)
	step("decay", err)

	r.StaleAttachments, err = m.CleanupStaleAttachments(ctx, 0)
	step("stale attachments", err)

	r.Review, err = m.ReviewWithLLM(ctx)
	step("review", err)

	r.Synthesized, err = m.SynthesizeExperiences(ctx)
	step("synthesize", err)

	if m.identityDir != "" {
		r.DigestWritten, err = m.RefreshMemoryMD(ctx, m.identityDir)
		step("digest", err)
	}

	r.VectorsSynced, err = m.SyncVectors(ctx)
	step("vector sync", err)

	r.FinishedAt = m.now().UTC()
	m.logger.Info("daily consolidation complete",
		"extracted", r.Extracted,
		"duplicates_removed", r.DuplicatesRemoved,
		"decayed", r.Decayed,
		"stale_attachments", r.StaleAttachments,
		"reviewed_deleted", r.Review.Deleted,
		"synthesized", r.Synthesized,
		"duration", r.FinishedAt.Sub(r.StartedAt),
	)
	return r, errors.Join(errs...)
}

// SyncVectors re-adds every live memory to the search backend. It is a
// no-op without an available backend.
func (m *Manager) SyncVectors(ctx context.Context) (int, error) {
	if m.backend == nil || !m.backend.Available() {
		return 0, nil
	}
	mems, err := m.store.ListMemories(ctx, storage.MemoryFilter{})
	if err != nil {
		return 0, fmt.Errorf("list memories: %w", err)
	}
	n, err := m.backend.BatchAdd(ctx, mems)
	if err != nil {
		return n, fmt.Errorf("batch add to %s: %w", m.backend.BackendType(), err)
	}
	m.logger.Debug("synced search backend", "backend", m.backend.BackendType(), "memories", n)
	return n, nil
}
