// Package memory defines the entities of the mnemo memory engine: semantic
// memories, episodes, the scratchpad, attachments, conversation turns and
// extraction queue items.
//
// Entities are plain values. The storage layer owns their on-disk
// representation; every other package works on ids or caller-owned copies.
// Numeric scores are clamped into [0,1] on construction, on Clamp, and on
// JSON decode, so upstream input can never push them out of range.
package memory

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MemoryType classifies a semantic memory.
type MemoryType string

const (
	TypeFact         MemoryType = "fact"
	TypePreference   MemoryType = "preference"
	TypeSkill        MemoryType = "skill"
	TypeContext      MemoryType = "context"
	TypeRule         MemoryType = "rule"
	TypeError        MemoryType = "error"
	TypePersonaTrait MemoryType = "persona_trait"
)

// AllTypes lists every memory type in display order.
var AllTypes = []MemoryType{
	TypeRule,
	TypePreference,
	TypeFact,
	TypeSkill,
	TypeError,
	TypeContext,
	TypePersonaTrait,
}

// ParseMemoryType normalizes s (case-insensitive) into a MemoryType.
// The second return is false when s names no known type.
func ParseMemoryType(s string) (MemoryType, bool) {
	t := MemoryType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTypes {
		if t == known {
			return t, true
		}
	}
	return TypeFact, false
}

// Priority controls retention of a semantic memory.
type Priority string

const (
	PriorityTransient Priority = "transient"
	PriorityShortTerm Priority = "short_term"
	PriorityLongTerm  Priority = "long_term"
	PriorityPermanent Priority = "permanent"
)

// ParsePriority normalizes s into a Priority, defaulting to short_term.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityTransient, PriorityShortTerm, PriorityLongTerm, PriorityPermanent:
		return p, true
	default:
		return PriorityShortTerm, false
	}
}

const (
	DefaultImportance = 0.5
	DefaultConfidence = 0.5
	DefaultDecayRate  = 0.1
)

// SemanticMemory is a single structured piece of knowledge: a fact,
// preference, skill, rule, error pattern or persona trait.
type SemanticMemory struct {
	ID              string     `json:"id"`
	Type            MemoryType `json:"type"`
	Priority        Priority   `json:"priority"`
	Content         string     `json:"content"`
	Subject         string     `json:"subject,omitempty"`
	Predicate       string     `json:"predicate,omitempty"`
	ImportanceScore float64    `json:"importance_score"`
	Confidence      float64    `json:"confidence"`
	DecayRate       float64    `json:"decay_rate"`
	AccessCount     int        `json:"access_count"`
	Tags            []string   `json:"tags"`
	Source          string     `json:"source,omitempty"`
	SourceEpisodeID string     `json:"source_episode_id,omitempty"`

	// SupersededBy is the id of the memory that replaced this one. It is a
	// back-reference only; nothing is owned through it.
	SupersededBy string `json:"superseded_by,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at,omitzero"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// NewSemanticMemory returns a memory with a fresh id, default scores and
// creation timestamps set to now.
func NewSemanticMemory(t MemoryType, content string) *SemanticMemory {
	now := time.Now().UTC()
	return &SemanticMemory{
		ID:              uuid.NewString(),
		Type:            t,
		Priority:        PriorityShortTerm,
		Content:         content,
		ImportanceScore: DefaultImportance,
		Confidence:      DefaultConfidence,
		DecayRate:       DefaultDecayRate,
		Tags:            []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Clamp forces ImportanceScore and Confidence into [0,1] and fills a missing
// id or type.
func (m *SemanticMemory) Clamp() {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = TypeFact
	}
	if m.Priority == "" {
		m.Priority = PriorityShortTerm
	}
	m.ImportanceScore = Clamp01(m.ImportanceScore, DefaultImportance)
	m.Confidence = Clamp01(m.Confidence, DefaultConfidence)
	if m.DecayRate < 0 || math.IsNaN(m.DecayRate) {
		m.DecayRate = DefaultDecayRate
	}
	if m.AccessCount < 0 {
		m.AccessCount = 0
	}
}

// Clone returns a deep copy, so tags are never shared between instances.
func (m *SemanticMemory) Clone() *SemanticMemory {
	if m == nil {
		return nil
	}
	c := *m
	c.Tags = append([]string{}, m.Tags...)
	if m.ExpiresAt != nil {
		exp := *m.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}

// Expired reports whether the memory has an expiry at or before now.
func (m *SemanticMemory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// ToMarkdown renders the memory as a single markdown bullet, for example
// "- [fact] Python: uses version 3.12 (tags: lang, runtime)".
func (m *SemanticMemory) ToMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s] ", m.Type)
	if m.Subject != "" {
		b.WriteString(m.Subject)
		b.WriteString(": ")
	}
	b.WriteString(m.Content)
	if len(m.Tags) > 0 {
		fmt.Fprintf(&b, " (tags: %s)", strings.Join(m.Tags, ", "))
	}
	return b.String()
}

// Clamp01 clamps v into [0,1]. NaN is replaced by fallback.
func Clamp01(v, fallback float64) float64 {
	switch {
	case math.IsNaN(v):
		return fallback
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
