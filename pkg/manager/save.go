package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// Duplicate grades how likely two memory contents say the same thing.
type Duplicate int

const (
	DuplicateNone Duplicate = iota

	// DuplicateLikely needs the thinker's confirmation.
	DuplicateLikely

	DuplicateExact
)

const (
	exactJaccard  = 0.8
	likelyJaccard = 0.3

	// containedMinLength is the length both contents need before one
	// containing the other counts as an exact duplicate.
	containedMinLength = 15

	// bigramMinLength is the length both contents need before bigram
	// similarity is considered.
	bigramMinLength = 10

	dedupCandidates = 5
)

const duplicateSystem = "You judge whether two memories carry the same information, even when worded differently. Answer with a single word: YES or NO."

const duplicatePrompt = `Do these two memories express the same information?
Memory A: %s
Memory B: %s

Answer YES or NO only.`

// CompareContent grades a against b, case-insensitively. Equal content, or
// content where one contains the other and both exceed fifteen characters,
// is exact. Otherwise character bigram Jaccard similarity above 0.8 is exact
// and above 0.3 is likely.
func CompareContent(a, b string) Duplicate {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return DuplicateNone
	}
	if a == b {
		return DuplicateExact
	}

	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la > containedMinLength && lb > containedMinLength && (strings.Contains(a, b) || strings.Contains(b, a)) {
		return DuplicateExact
	}
	if la < bigramMinLength || lb < bigramMinLength {
		return DuplicateNone
	}

	switch j := jaccard(bigrams(a), bigrams(b)); {
	case j > exactJaccard:
		return DuplicateExact
	case j > likelyJaccard:
		return DuplicateLikely
	default:
		return DuplicateNone
	}
}

func bigrams(s string) map[string]struct{} {
	runes := []rune(s)
	set := make(map[string]struct{}, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for k := range a {
		if _, ok := b[k]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// saveExtracted persists one extracted item. A live memory with the same
// subject and predicate is evolved instead; failing that, the closest
// keyword matches are graded with CompareContent and an exact or
// thinker-confirmed duplicate is evolved. Returns the id of the memory
// created or evolved.
func (m *Manager) saveExtracted(ctx context.Context, it extractor.Item, episodeID string) (string, error) {
	content := strings.TrimSpace(it.Content)

	if it.Subject != "" && it.Predicate != "" {
		existing, err := m.store.FindSimilar(ctx, it.Subject, it.Predicate)
		if err != nil {
			return "", fmt.Errorf("find similar: %w", err)
		}
		if existing != nil {
			if err := m.evolve(ctx, existing, content, it.Importance); err != nil {
				return "", err
			}
			m.logger.Debug("evolved memory by subject and predicate", "id", existing.ID)
			return existing.ID, nil
		}
	}

	if utf8.RuneCountInString(content) >= bigramMinLength {
		if existing := m.findDuplicate(ctx, content); existing != nil {
			if err := m.evolve(ctx, existing, content, it.Importance); err != nil {
				return "", err
			}
			m.logger.Debug("evolved memory by content", "id", existing.ID)
			return existing.ID, nil
		}
	}

	it.Content = content
	mem := it.ToMemory(sessionSource, episodeID, m.now())
	if err := m.store.SaveMemory(ctx, mem); err != nil {
		return "", fmt.Errorf("save memory: %w", err)
	}
	m.cache.Put(mem)
	m.indexMemory(ctx, mem)
	return mem.ID, nil
}

// findDuplicate returns the first keyword match that CompareContent grades
// exact, or likely and confirmed by the thinker. Search errors mean no
// duplicate.
func (m *Manager) findDuplicate(ctx context.Context, content string) *memory.SemanticMemory {
	hits, err := m.keyword.Search(ctx, content, dedupCandidates, "")
	if err != nil {
		m.logger.Debug("duplicate search failed", "error", err)
		return nil
	}
	for _, hit := range hits {
		existing, err := m.store.PeekMemory(ctx, hit.MemoryID)
		if err != nil || existing == nil || existing.SupersededBy != "" {
			continue
		}
		switch CompareContent(content, existing.Content) {
		case DuplicateExact:
			return existing
		case DuplicateLikely:
			if m.confirmDuplicate(ctx, content, existing.Content) {
				return existing
			}
		}
	}
	return nil
}

func (m *Manager) confirmDuplicate(ctx context.Context, a, b string) bool {
	reply, err := brain.Ask(ctx, m.thinker, m.timeout, fmt.Sprintf(duplicatePrompt, a, b), duplicateSystem)
	if err != nil {
		if !errors.Is(err, brain.ErrNotConfigured) && !errors.Is(err, brain.ErrNoResult) {
			m.logger.Debug("duplicate confirmation failed", "error", err)
		}
		return false
	}
	return isYes(reply)
}

// isYes reports whether the first word of reply is "yes".
func isYes(reply string) bool {
	first := strings.FieldsFunc(reply, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	return len(first) > 0 && strings.EqualFold(first[0], "yes")
}

// evolve reinforces existing with a repeated observation: confidence rises
// by 0.1, importance keeps the maximum, and the content is replaced when the
// new observation is more important, or as important and longer.
func (m *Manager) evolve(ctx context.Context, existing *memory.SemanticMemory, content string, importance float64) error {
	confidence := min(1, existing.Confidence+0.1)
	score := max(existing.ImportanceScore, importance)
	u := storage.MemoryUpdate{
		Confidence:      &confidence,
		ImportanceScore: &score,
	}
	if content != "" && (importance > existing.ImportanceScore ||
		(importance >= existing.ImportanceScore && utf8.RuneCountInString(content) > utf8.RuneCountInString(existing.Content))) {
		u.Content = &content
	}

	if _, err := m.store.UpdateMemory(ctx, existing.ID, u); err != nil {
		return fmt.Errorf("evolve memory %s: %w", existing.ID, err)
	}
	if updated := m.refreshCached(ctx, existing.ID); updated != nil && u.Content != nil {
		m.indexMemory(ctx, updated)
	}
	return nil
}

// indexMemory adds mem to a non-keyword backend. The keyword index is kept
// by the store itself.
func (m *Manager) indexMemory(ctx context.Context, mem *memory.SemanticMemory) {
	if m.backend == m.keyword || !m.backend.Available() {
		return
	}
	if err := m.backend.Add(ctx, mem); err != nil {
		m.logger.Warn("indexing memory failed", "id", mem.ID, "backend", m.backend.BackendType(), "error", err)
	}
}
