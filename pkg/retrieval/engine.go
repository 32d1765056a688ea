// Package retrieval recalls memories through several paths, reranks them on
// relevance, recency, importance and access frequency, and formats the
// winners into a token-budgeted block for prompt injection.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Recall relevance per path.
const (
	RelevanceSemantic   = 0.8
	RelevanceEpisode    = 0.6
	RelevanceRecent     = 0.5
	RelevanceAttachment = 0.85

	attachmentImportance = 0.7
	attachmentAccess     = 0.3
)

const (
	DefaultMaxTokens = 700

	semanticLimit   = 15
	episodeLimit    = 5
	entityEpisodes  = 3
	entityLimit     = 3
	recentDays      = 7
	recentLimit     = 5
	attachmentLimit = 5

	recentMinImportance = 0.6
	recentMinRecency    = 0.3
)

// Store is the slice of the persistent store the engine reads.
type Store interface {
	storage.MemoryStore
	storage.EpisodeStore
	storage.AttachmentStore
}

// Config configures an Engine.
type Config struct {
	Store Store

	// Backend is the active search backend.
	Backend search.Backend

	// Fallback is queried when Backend errors or finds nothing. Usually the
	// keyword backend; it may be the same as Backend.
	Fallback search.Backend

	Logger *slog.Logger

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Engine runs multi-way recall and reranking.
type Engine struct {
	store    Store
	backend  search.Backend
	fallback search.Backend
	logger   *slog.Logger
	now      func() time.Time
}

// RetrieveOptions tunes Retrieve.
type RetrieveOptions struct {
	// RecentMessages augment the query with conversation context.
	RecentMessages []memory.Message

	// Persona enables the technical persona boost for "tech_expert" and
	// "jarvis".
	Persona string

	// MaxTokens bounds the formatted output. Defaults to DefaultMaxTokens.
	MaxTokens int
}

// NewEngine creates a retrieval engine.
func NewEngine(c Config) (*Engine, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("retrieval engine requires a store")
	}
	l := c.Logger
	if l == nil {
		l = logger.Nop()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:    c.Store,
		backend:  c.Backend,
		fallback: c.Fallback,
		logger:   l,
		now:      now,
	}, nil
}

// Retrieve recalls, reranks and formats memories relevant to query. Memories
// that make it into the output have their access counts bumped. An error is
// returned only when semantic search failed on every backend.
func (e *Engine) Retrieve(ctx context.Context, query string, opts RetrieveOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	cands, err := e.recall(ctx, query, opts.RecentMessages)
	if err != nil {
		return "", err
	}
	ranked := Rerank(cands, opts.Persona)

	out, included := formatWithin(ranked, maxTokens)

	var ids []string
	for _, c := range included {
		if c.Memory != nil {
			ids = append(ids, c.Memory.ID)
		}
	}
	if len(ids) > 0 {
		if err := e.store.BumpAccess(ctx, ids); err != nil {
			e.logger.Warn("failed to bump memory access", "error", err)
		}
	}

	e.logger.Debug("retrieved memories",
		"candidates", len(ranked),
		"included", len(included),
	)
	return out, nil
}

// RetrieveCandidates returns up to limit reranked candidates without
// formatting or persona boost.
func (e *Engine) RetrieveCandidates(ctx context.Context, query string, recent []memory.Message, limit int) ([]*Candidate, error) {
	if limit <= 0 {
		limit = 20
	}
	cands, err := e.recall(ctx, query, recent)
	if err != nil {
		return nil, err
	}
	ranked := Rerank(cands, "")
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (e *Engine) recall(ctx context.Context, query string, recent []memory.Message) ([]*Candidate, error) {
	enhanced := EnhanceQuery(query, recent)

	semantic, err := e.searchSemantic(ctx, enhanced)
	if err != nil {
		return nil, err
	}
	episodes := e.searchEpisodes(ctx, enhanced)
	recents := e.searchRecent(ctx)
	attachments := e.searchAttachments(ctx, enhanced)

	return Merge(semantic, episodes, recents, attachments), nil
}

func (e *Engine) searchSemantic(ctx context.Context, query string) ([]*Candidate, error) {
	results, err := e.backendSearch(ctx, query)
	if err != nil {
		return nil, err
	}

	now := e.now()
	cands := make([]*Candidate, 0, len(results))
	for _, r := range results {
		m, err := e.store.PeekMemory(ctx, r.MemoryID)
		if err != nil || m == nil {
			continue
		}
		cands = append(cands, memoryCandidate(m, SourceSemantic, RelevanceSemantic, now))
	}
	return cands, nil
}

// backendSearch queries the active backend, then the fallback when the
// active one fails or finds nothing.
func (e *Engine) backendSearch(ctx context.Context, query string) ([]search.Result, error) {
	var primaryErr error
	if e.backend != nil {
		results, err := e.backend.Search(ctx, query, semanticLimit, "")
		if err == nil && len(results) > 0 {
			return results, nil
		}
		if err != nil {
			primaryErr = err
			e.logger.Warn("search backend failed",
				"backend", e.backend.BackendType(),
				"error", err,
			)
		}
	}

	if e.fallback == nil || e.fallback == e.backend {
		return nil, primaryErr
	}
	results, err := e.fallback.Search(ctx, query, semanticLimit, "")
	if err != nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("semantic search: %w", primaryErr)
		}
		return nil, fmt.Errorf("fallback search: %w", err)
	}
	return results, nil
}

func (e *Engine) searchEpisodes(ctx context.Context, query string) []*Candidate {
	seen := make(map[string]bool)
	var episodes []*memory.Episode
	add := func(found []*memory.Episode) {
		for _, ep := range found {
			if !seen[ep.ID] {
				seen[ep.ID] = true
				episodes = append(episodes, ep)
			}
		}
	}

	entities := QueryEntities(query)
	for _, entity := range entities[:min(len(entities), entityLimit)] {
		found, err := e.store.SearchEpisodes(ctx, entity, entityEpisodes)
		if err != nil {
			e.logger.Debug("episode entity search failed", "entity", entity, "error", err)
			continue
		}
		add(found)
	}

	recent, err := e.store.RecentEpisodes(ctx, recentDays, recentLimit)
	if err != nil {
		e.logger.Debug("recent episode search failed", "error", err)
	}
	add(recent)

	now := e.now()
	cands := make([]*Candidate, 0, min(len(episodes), episodeLimit))
	for _, ep := range episodes[:min(len(episodes), episodeLimit)] {
		cands = append(cands, &Candidate{
			ID:         ep.ID,
			Content:    ep.ToMarkdown(),
			MemoryType: "episode",
			Source:     SourceEpisode,
			Relevance:  RelevanceEpisode,
			Recency:    Recency(ep.EndedAt, now),
			Importance: ep.ImportanceScore,
			Access:     AccessScore(ep.AccessCount),
			Episode:    ep,
		})
	}
	return cands
}

func (e *Engine) searchRecent(ctx context.Context) []*Candidate {
	mems, err := e.store.ListMemories(ctx, storage.MemoryFilter{
		MinImportance: recentMinImportance,
		Limit:         recentLimit,
	})
	if err != nil {
		e.logger.Debug("recent memory search failed", "error", err)
		return nil
	}

	now := e.now()
	var cands []*Candidate
	for _, m := range mems {
		c := memoryCandidate(m, SourceRecent, RelevanceRecent, now)
		if c.Recency < recentMinRecency {
			continue
		}
		cands = append(cands, c)
	}
	return cands
}

func (e *Engine) searchAttachments(ctx context.Context, query string) []*Candidate {
	if !HasMediaCue(query) {
		return nil
	}

	found, err := e.store.SearchAttachments(ctx, storage.AttachmentQuery{
		Text:  query,
		Limit: attachmentLimit,
	})
	if err != nil {
		e.logger.Debug("attachment search failed", "error", err)
		return nil
	}

	now := e.now()
	cands := make([]*Candidate, 0, len(found))
	for _, a := range found {
		cands = append(cands, &Candidate{
			ID:         "attach:" + a.ID,
			Content:    DescribeAttachment(a),
			MemoryType: "attachment",
			Source:     SourceAttachment,
			Relevance:  RelevanceAttachment,
			Recency:    Recency(a.CreatedAt, now),
			Importance: attachmentImportance,
			Access:     attachmentAccess,
			Attachment: a,
		})
	}
	return cands
}

// DescribeAttachment renders an attachment as one injectable line:
//
//	[user file] cat.jpg | a grey cat | path: /media/cat.jpg
func DescribeAttachment(a *memory.Attachment) string {
	label := "user file"
	if a.Direction == memory.DirectionOutbound {
		label = "generated file"
	}

	parts := []string{fmt.Sprintf("[%s] %s", label, a.Filename)}
	if a.Description != "" {
		parts = append(parts, a.Description)
	}
	if a.Transcription != "" {
		parts = append(parts, fmt.Sprintf("(transcript: %s)", truncateRunes(a.Transcription, 100)))
	}
	switch {
	case a.LocalPath != "":
		parts = append(parts, "path: "+a.LocalPath)
	case a.URL != "":
		parts = append(parts, "URL: "+a.URL)
	}
	return strings.Join(parts, " | ")
}

func memoryCandidate(m *memory.SemanticMemory, source Source, relevance float64, now time.Time) *Candidate {
	touched := m.UpdatedAt
	if m.LastAccessedAt.After(touched) {
		touched = m.LastAccessedAt
	}
	return &Candidate{
		ID:         m.ID,
		Content:    m.ToMarkdown(),
		MemoryType: string(m.Type),
		Source:     source,
		Relevance:  relevance,
		Recency:    Recency(touched, now),
		Importance: m.ImportanceScore,
		Access:     AccessScore(m.AccessCount),
		Memory:     m,
	}
}
