// Package manager is the memory engine's entry point. It owns the session
// lifecycle, records turns and attachments, saves extracted memories with
// layered deduplication and builds the context block injected into prompts.
//
// The manager composes the store, the active search backend, the retrieval
// engine, the extractor and the lifecycle passes. A local cache mirrors the
// store so the keyword fallback in GetInjectionContext works even when every
// search backend fails.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/lifecycle"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/memory/local"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/search/fts"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/worker"
)

const (
	// maxRecentMessages caps the conversation context kept for query
	// augmentation.
	maxRecentMessages = 10

	// enqueueMinLength is the shortest turn, in runes, queued for
	// background extraction.
	enqueueMinLength = 20

	sessionSource = "session_extraction"
)

// Config configures a Manager.
type Config struct {
	// Store is the persistent store. Required. The manager closes it.
	Store storage.Driver

	// Backend is the active search backend. Defaults to keyword search over
	// Store.
	Backend search.Backend

	// Fallback serves retrieval when Backend errors or finds nothing.
	// Defaults to keyword search over Store.
	Fallback search.Backend

	// Thinker powers extraction, review and duplicate confirmation.
	// Optional.
	Thinker brain.Thinker

	// Timeout bounds each thinker call. Defaults to brain.DefaultTimeout.
	Timeout time.Duration

	// IdentityDir holds the MEMORY.md digest. Empty disables the digest.
	IdentityDir string

	// Persona enables the retrieval persona boost.
	Persona string

	// MaxTokens bounds the ranked section of the injection context.
	// Defaults to retrieval.DefaultMaxTokens.
	MaxTokens int

	// MinTurnLength is forwarded to the extractor.
	MinTurnLength int

	// Workers is the number of background extraction workers. Defaults to
	// one. Workers only run when a thinker is configured.
	Workers uint

	Logger *slog.Logger

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Manager orchestrates the memory engine. It is safe for concurrent use.
type Manager struct {
	store     storage.Driver
	backend   search.Backend
	keyword   search.Backend
	thinker   brain.Thinker
	timeout   time.Duration
	persona   string
	maxTokens int

	extractor *extractor.Extractor
	retrieval *retrieval.Engine
	lifecycle *lifecycle.Manager
	cache     *local.Cache
	digest    *digestCache
	pool      *worker.Pool

	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	sessionID  string
	turnOffset int
	turns      []memory.ConversationTurn
	recent     []memory.Message
	cited      []extractor.CitedMemory

	closeOnce sync.Once
}

// New creates a Manager, loads every stored memory into the local cache and
// starts the digest watcher and extraction workers.
func New(ctx context.Context, c Config) (*Manager, error) {
	if c.Store == nil {
		return nil, ErrNoStore
	}

	m := &Manager{
		store:     c.Store,
		backend:   c.Backend,
		thinker:   c.Thinker,
		timeout:   c.Timeout,
		persona:   c.Persona,
		maxTokens: c.MaxTokens,
		logger:    c.Logger,
		now:       c.Now,
		cache:     local.NewCache(local.Config{Enabled: true}),
	}
	if m.logger == nil {
		m.logger = logger.Nop()
	}
	if m.now == nil {
		m.now = time.Now
	}

	keyword, err := fts.New(c.Store)
	if err != nil {
		return nil, fmt.Errorf("creating keyword backend: %w", err)
	}
	m.keyword = keyword
	if m.backend == nil {
		m.backend = keyword
	}
	fallback := c.Fallback
	if fallback == nil {
		fallback = keyword
	}

	m.extractor = extractor.New(extractor.Config{
		Thinker:       c.Thinker,
		MinTurnLength: c.MinTurnLength,
		Timeout:       c.Timeout,
		Logger:        m.logger,
	})

	m.retrieval, err = retrieval.NewEngine(retrieval.Config{
		Store:    c.Store,
		Backend:  m.backend,
		Fallback: fallback,
		Logger:   m.logger,
		Now:      m.now,
	})
	if err != nil {
		return nil, fmt.Errorf("creating retrieval engine: %w", err)
	}

	m.lifecycle, err = lifecycle.New(lifecycle.Config{
		Store:       c.Store,
		Extractor:   m.extractor,
		Timeout:     c.Timeout,
		Backend:     m.backend,
		IdentityDir: c.IdentityDir,
		Save:        m.saveExtracted,
		Logger:      m.logger,
		Now:         m.now,
	})
	if err != nil {
		return nil, fmt.Errorf("creating lifecycle manager: %w", err)
	}

	if err := m.reloadCache(ctx); err != nil {
		return nil, err
	}

	if c.IdentityDir != "" {
		m.digest = newDigestCache(c.IdentityDir, m.logger)
	}

	if m.extractor.HasThinker() {
		workers := c.Workers
		if workers == 0 {
			workers = 1
		}
		m.pool, err = worker.NewPool(&worker.Config{
			Handler:    m.drainQueue,
			NumWorkers: workers,
			Logger:     m.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating extraction workers: %w", err)
		}
	}

	m.logger.Info("memory manager ready",
		"memories", m.cache.Len(),
		"backend", m.backend.BackendType(),
		"thinker", m.extractor.HasThinker(),
	)
	return m, nil
}

// drainQueue is the worker handler: it runs the queue through the extractor
// until no pending item remains.
func (m *Manager) drainQueue(ctx context.Context, job worker.Job) error {
	n, err := m.lifecycle.ProcessUnextracted(ctx, lifecycle.DefaultQueueBatch)
	if n > 0 {
		m.logger.Debug("background extraction saved memories", "session_id", job.SessionID, "memories", n)
	}
	return err
}

func (m *Manager) reloadCache(ctx context.Context) error {
	all, err := m.store.LoadAllMemories(ctx)
	if err != nil {
		return fmt.Errorf("loading memories: %w", err)
	}
	m.cache.Replace(all)
	return nil
}

// refreshCached reloads one memory into the cache after a store update.
func (m *Manager) refreshCached(ctx context.Context, id string) *memory.SemanticMemory {
	mem, err := m.store.PeekMemory(ctx, id)
	if err != nil || mem == nil {
		m.cache.Delete(id)
		return nil
	}
	m.cache.Put(mem)
	return mem
}

// ConsolidateDaily runs every lifecycle pass and resynchronizes the local
// cache with the store.
func (m *Manager) ConsolidateDaily(ctx context.Context) (*lifecycle.Report, error) {
	report, err := m.lifecycle.ConsolidateDaily(ctx)
	if reloadErr := m.reloadCache(ctx); reloadErr != nil {
		err = errors.Join(err, reloadErr)
	}
	if m.digest != nil {
		m.digest.invalidate()
	}
	return report, err
}

// Lifecycle exposes the individual maintenance passes.
func (m *Manager) Lifecycle() *lifecycle.Manager {
	return m.lifecycle
}

// Stats summarizes the manager and its store.
type Stats struct {
	Store         *storage.Stats `json:"store"`
	Cached        int            `json:"cached_memories"`
	Backend       string         `json:"backend"`
	Thinker       bool           `json:"thinker"`
	SessionID     string         `json:"session_id,omitempty"`
	SessionTurns  int            `json:"session_turns"`
	JobsProcessed int64          `json:"jobs_processed"`
	JobsFailed    int64          `json:"jobs_failed"`
}

// Stats returns counts from the store and the in-process state.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	st, err := m.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}

	m.mu.Lock()
	s := &Stats{
		Store:        st,
		Cached:       m.cache.Len(),
		Backend:      m.backend.BackendType(),
		Thinker:      m.extractor.HasThinker(),
		SessionID:    m.sessionID,
		SessionTurns: len(m.turns),
	}
	m.mu.Unlock()

	if m.pool != nil {
		s.JobsProcessed, s.JobsFailed = m.pool.Stats()
	}
	return s, nil
}

// Close drains the extraction workers, stops the digest watcher, then closes
// the search backend when it holds resources, and the store. It is safe to
// call more than once.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if m.pool != nil {
			m.pool.Close()
		}
		if m.digest != nil {
			m.digest.close()
		}
		if c, ok := m.backend.(io.Closer); ok {
			err = c.Close()
		}
		err = errors.Join(err, m.store.Close())
	})
	return err
}
