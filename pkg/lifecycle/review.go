package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/brain"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const (
	// ReviewBatchSize is how many memories one review prompt carries.
	ReviewBatchSize = 15

	// A batch whose delete and merge decisions exceed
	// max(minRiskyActions, riskyShare * batch) is skipped entirely.
	minRiskyActions = 3
	riskyShare      = 0.4
)

const reviewSystem = "You audit memory quality. Reply with a JSON array only."

const reviewPrompt = `Review each memory below and decide whether it deserves to be kept long term.

Keep genuine long-term information: who the user is, lasting preferences, behaviour rules for the assistant, the technical environment, reusable approaches and lessons. Memories cited five or more times have proven useful; keep them unless clearly outdated.

Delete noise: one-off task requests, task outputs and their details, reports of finished work, stale time-bound information, redundant entries, fragments that make no sense alone. Memories never cited and scored below 0.5 are the first candidates.

Merge two memories that say the same thing: mark one as merge and give the combined content.

## Memories

%s

## Output

One JSON object per memory:
[
  {
    "id": "memory id",
    "action": "keep|delete|merge|update",
    "reason": "a few words",
    "merged_with": "target id, merge only",
    "new_content": "replacement content, update or merge only",
    "new_importance": 0.5-1.0
  }
]

Output only the JSON array.`

// ReviewReport counts review outcomes.
type ReviewReport struct {
	Deleted int `json:"deleted"`
	Updated int `json:"updated"`
	Merged  int `json:"merged"`
	Kept    int `json:"kept"`
	Errors  int `json:"errors"`
}

type reviewDecision struct {
	ID            string   `json:"id"`
	Action        string   `json:"action"`
	Reason        string   `json:"reason"`
	MergedWith    string   `json:"merged_with"`
	NewContent    string   `json:"new_content"`
	NewImportance *float64 `json:"new_importance"`
}

// ReviewWithLLM has the thinker judge every memory in batches of fifteen,
// applying its delete, update and merge decisions. Without a thinker every
// memory is kept. A batch with an implausible number of destructive
// decisions, an unparseable reply or a failed call keeps the whole batch.
func (m *Manager) ReviewWithLLM(ctx context.Context) (ReviewReport, error) {
	var r ReviewReport

	all, err := m.store.ListMemories(ctx, storage.MemoryFilter{})
	if err != nil {
		return r, fmt.Errorf("list memories: %w", err)
	}
	if len(all) == 0 {
		return r, nil
	}
	if m.thinker == nil {
		m.logger.Debug("no thinker for memory review, skipping")
		r.Kept = len(all)
		return r, nil
	}

	for start := 0; start < len(all); start += ReviewBatchSize {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		batch := all[start:min(start+ReviewBatchSize, len(all))]
		if err := m.reviewBatch(ctx, batch, &r); err != nil {
			m.logger.Warn("review batch failed", "batch", start/ReviewBatchSize, "error", err)
			r.Errors++
			r.Kept += len(batch)
		}
	}

	m.logger.Info("memory review complete",
		"deleted", r.Deleted,
		"updated", r.Updated,
		"merged", r.Merged,
		"kept", r.Kept,
	)
	return r, nil
}

func (m *Manager) reviewBatch(ctx context.Context, batch []*memory.SemanticMemory, r *ReviewReport) error {
	lines := make([]string, 0, len(batch))
	for _, mem := range batch {
		lines = append(lines, fmt.Sprintf("- ID=%s | type=%s | score=%.2f | cited=%d | subject=%s | content=%s",
			mem.ID, mem.Type, mem.ImportanceScore, mem.AccessCount, mem.Subject, mem.Content))
	}

	reply, err := brain.Ask(ctx, m.thinker, m.timeout, fmt.Sprintf(reviewPrompt, strings.Join(lines, "\n")), reviewSystem)
	if errors.Is(err, brain.ErrNoResult) {
		r.Kept += len(batch)
		return nil
	}
	if err != nil {
		return err
	}

	decisions, ok := parseDecisions(reply)
	if !ok {
		m.logger.Warn("review reply held no JSON array")
		r.Kept += len(batch)
		return nil
	}

	destructive := 0
	for _, d := range decisions {
		if a := strings.ToLower(d.Action); a == "delete" || a == "merge" {
			destructive++
		}
	}
	if limit := max(minRiskyActions, int(float64(len(batch))*riskyShare)); destructive > limit {
		m.logger.Warn("skipping risky review batch", "destructive", destructive, "batch", len(batch))
		r.Kept += len(batch)
		return nil
	}

	byID := make(map[string]reviewDecision, len(decisions))
	for _, d := range decisions {
		if d.ID != "" {
			byID[d.ID] = d
		}
	}

	for _, mem := range batch {
		d, ok := byID[mem.ID]
		if !ok {
			r.Kept++
			continue
		}
		if err := m.applyDecision(ctx, mem, d, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) applyDecision(ctx context.Context, mem *memory.SemanticMemory, d reviewDecision, r *ReviewReport) error {
	switch strings.ToLower(d.Action) {
	case "delete":
		if _, err := m.store.DeleteMemory(ctx, mem.ID); err != nil {
			return err
		}
		r.Deleted++
		m.logger.Debug("review deleted memory", "id", mem.ID, "reason", d.Reason)

	case "update":
		var u storage.MemoryUpdate
		if c := strings.TrimSpace(d.NewContent); c != "" {
			u.Content = &c
		}
		if d.NewImportance != nil {
			imp := memory.Clamp01(*d.NewImportance, mem.ImportanceScore)
			u.ImportanceScore = &imp
		}
		if u.Content == nil && u.ImportanceScore == nil {
			r.Kept++
			return nil
		}
		if _, err := m.store.UpdateMemory(ctx, mem.ID, u); err != nil {
			return err
		}
		r.Updated++

	case "merge":
		c := strings.TrimSpace(d.NewContent)
		if d.MergedWith == "" || d.MergedWith == mem.ID || c == "" {
			r.Kept++
			return nil
		}
		ok, err := m.store.UpdateMemory(ctx, d.MergedWith, storage.MemoryUpdate{Content: &c})
		if err != nil {
			return err
		}
		if !ok {
			r.Kept++
			return nil
		}
		if _, err := m.store.DeleteMemory(ctx, mem.ID); err != nil {
			return err
		}
		r.Merged++

	default:
		r.Kept++
	}
	return nil
}

// parseDecisions decodes the JSON array in reply, dropping elements that are
// not decision objects.
func parseDecisions(reply string) ([]reviewDecision, bool) {
	start := strings.IndexByte(reply, '[')
	end := strings.LastIndexByte(reply, ']')
	if start < 0 || end <= start {
		return nil, false
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil, false
	}
	decisions := make([]reviewDecision, 0, len(raw))
	for _, elem := range raw {
		var d reviewDecision
		if json.Unmarshal(elem, &d) == nil {
			decisions = append(decisions, d)
		}
	}
	return decisions, true
}

const synthesisSystem = "You distil general principles from experience. Reply with a JSON array only."

const synthesisPrompt = `Below are recent skill and lesson memories. Decide whether several of them describe the same kind of problem and can be generalised into one broader principle.

## Memories

%s

Only combine memories that genuinely belong together. The principle should be more general and more directive than its sources. If nothing can be combined output [].

[
  {
    "synthesized_from": ["source id 1", "source id 2"],
    "content": "the general principle",
    "subject": "topic",
    "predicate": "kind of lesson",
    "importance": 0.8-1.0
  }
]

Output only the JSON array.`

const (
	synthesisMinSources  = 3
	synthesisMaxSources  = 30
	synthesisMinContent  = 10
	synthesisConfidence  = 0.8
	synthesisDefaultImp  = 0.85
	synthesisMinImp      = 0.7
	synthesisSourceLabel = "experience_synthesis"
)

// SynthesizeExperiences asks the thinker to generalise related skill and
// error memories into principles. Each principle is saved as a long-term
// skill and its sources are marked superseded by it. Needs at least three
// candidate memories and a thinker.
func (m *Manager) SynthesizeExperiences(ctx context.Context) (int, error) {
	if m.thinker == nil {
		return 0, nil
	}

	all, err := m.store.ListMemories(ctx, storage.MemoryFilter{})
	if err != nil {
		return 0, fmt.Errorf("list memories: %w", err)
	}
	var sources []*memory.SemanticMemory
	for _, mem := range all {
		if mem.Type == memory.TypeSkill || mem.Type == memory.TypeError {
			sources = append(sources, mem)
		}
	}
	if len(sources) < synthesisMinSources {
		return 0, nil
	}

	lines := make([]string, 0, min(len(sources), synthesisMaxSources))
	known := make(map[string]bool, len(sources))
	for _, mem := range sources[:min(len(sources), synthesisMaxSources)] {
		known[mem.ID] = true
		lines = append(lines, fmt.Sprintf("- ID=%s | type=%s | cited=%d | content=%s", mem.ID, mem.Type, mem.AccessCount, mem.Content))
	}

	reply, err := brain.Ask(ctx, m.thinker, m.timeout, fmt.Sprintf(synthesisPrompt, strings.Join(lines, "\n")), synthesisSystem)
	if err != nil {
		if !errors.Is(err, brain.ErrNoResult) {
			m.logger.Warn("experience synthesis failed", "error", err)
		}
		return 0, nil
	}

	start, end := strings.IndexByte(reply, '['), strings.LastIndexByte(reply, ']')
	if start < 0 || end <= start {
		return 0, nil
	}
	var syntheses []struct {
		From       []string `json:"synthesized_from"`
		Content    string   `json:"content"`
		Subject    string   `json:"subject"`
		Predicate  string   `json:"predicate"`
		Importance *float64 `json:"importance"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &syntheses); err != nil {
		m.logger.Debug("unparseable synthesis reply", "error", err)
		return 0, nil
	}

	saved := 0
	for _, s := range syntheses {
		content := strings.TrimSpace(s.Content)
		var from []string
		for _, id := range s.From {
			if known[id] {
				from = append(from, id)
			}
		}
		if utf8.RuneCountInString(content) < synthesisMinContent || len(from) < 2 {
			continue
		}

		imp := synthesisDefaultImp
		if s.Importance != nil {
			imp = *s.Importance
		}
		principle := memory.NewSemanticMemory(memory.TypeSkill, content)
		principle.Priority = memory.PriorityLongTerm
		principle.Subject = strings.TrimSpace(s.Subject)
		principle.Predicate = strings.TrimSpace(s.Predicate)
		principle.ImportanceScore = min(1, max(synthesisMinImp, imp))
		principle.Confidence = synthesisConfidence
		principle.Source = synthesisSourceLabel
		principle.Tags = []string{"experience"}
		if err := m.store.SaveMemory(ctx, principle); err != nil {
			return saved, fmt.Errorf("save principle: %w", err)
		}
		saved++

		for _, id := range from {
			pid := principle.ID
			if _, err := m.store.UpdateMemory(ctx, id, storage.MemoryUpdate{SupersededBy: &pid}); err != nil {
				m.logger.Warn("failed to mark memory superseded", "id", id, "error", err)
			}
		}
	}

	if saved > 0 {
		m.logger.Info("synthesized experience principles", "principles", saved, "sources", len(sources))
	}
	return saved, nil
}
