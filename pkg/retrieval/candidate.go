package retrieval

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Source names the recall path a candidate came from.
type Source string

const (
	SourceSemantic   Source = "semantic"
	SourceEpisode    Source = "episode"
	SourceRecent     Source = "recent"
	SourceAttachment Source = "attachment"
)

// Rerank weights. They sum to 1, so a candidate maximal on every signal
// scores 1.0 before any persona boost.
const (
	WeightRelevance  = 0.40
	WeightRecency    = 0.25
	WeightImportance = 0.20
	WeightAccess     = 0.15

	// PersonaBoost multiplies skill and error scores for technical personas.
	PersonaBoost = 1.2
)

// Candidate is one recalled item with its scoring signals.
type Candidate struct {
	// ID is the memory or episode id, or "attach:<id>" for attachments.
	ID string

	// Content is the line injected into the prompt.
	Content string

	// MemoryType is the memory type, or "episode" / "attachment".
	MemoryType string
	Source     Source

	Relevance  float64
	Recency    float64
	Importance float64
	Access     float64
	Score      float64

	// Exactly one of these is set.
	Memory     *memory.SemanticMemory
	Episode    *memory.Episode
	Attachment *memory.Attachment
}

// Recency scores how recent t is relative to now: exp(-0.1 * days). Now
// scores 1, a day ago about 0.905 and thirty days ago about 0.05. A zero
// time scores 0; future times score 1.
func Recency(t, now time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	days := max(0, now.Sub(t).Hours()/24)
	return math.Exp(-0.1 * days)
}

// AccessScore maps an access count onto [0,1] with diminishing returns:
// min(1, ln(1+n)/5). Zero accesses score 0.
func AccessScore(n int) float64 {
	if n <= 0 {
		return 0
	}
	return min(1, math.Log1p(float64(n))/5)
}

// IsTechPersona reports whether persona gets the skill/error boost.
func IsTechPersona(persona string) bool {
	switch strings.ToLower(strings.TrimSpace(persona)) {
	case "tech_expert", "jarvis":
		return true
	}
	return false
}

// Rerank scores every candidate with the weighted sum, applies the persona
// boost, and sorts best first. Candidates are modified in place.
func Rerank(cands []*Candidate, persona string) []*Candidate {
	boost := IsTechPersona(persona)
	for _, c := range cands {
		c.Score = WeightRelevance*c.Relevance +
			WeightRecency*c.Recency +
			WeightImportance*c.Importance +
			WeightAccess*c.Access
		if boost && (c.MemoryType == string(memory.TypeSkill) || c.MemoryType == string(memory.TypeError)) {
			c.Score *= PersonaBoost
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Score > cands[j].Score })
	return cands
}

// Merge keeps one candidate per id. On a collision the higher relevance
// wins; the first seen wins a tie. Order of first appearance is kept.
func Merge(lists ...[]*Candidate) []*Candidate {
	index := make(map[string]int)
	var merged []*Candidate
	for _, list := range lists {
		for _, c := range list {
			if i, ok := index[c.ID]; ok {
				if c.Relevance > merged[i].Relevance {
					merged[i] = c
				}
				continue
			}
			index[c.ID] = len(merged)
			merged = append(merged, c)
		}
	}
	return merged
}

// Format joins candidate contents one per line, stopping before the line
// that would exceed maxTokens. Tokens are estimated as characters / 4.
func Format(cands []*Candidate, maxTokens int) string {
	lines, _ := formatWithin(cands, maxTokens)
	return lines
}

func formatWithin(cands []*Candidate, maxTokens int) (string, []*Candidate) {
	if len(cands) == 0 {
		return "", nil
	}

	var (
		b        strings.Builder
		used     float64
		included []*Candidate
	)
	for _, c := range cands {
		cost := float64(utf8.RuneCountInString(c.Content)) / 4
		if used+cost > float64(maxTokens) {
			break
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.Content)
		used += cost
		included = append(included, c)
	}
	return b.String(), included
}
