package extractor

import (
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Duration is the retention hint attached to an extracted item.
type Duration string

const (
	DurationPermanent Duration = "permanent"
	Duration7d        Duration = "7d"
	Duration24h       Duration = "24h"
	DurationSession   Duration = "session"
)

// TTL returns the retention window of d. Permanent, and unknown hints, have
// no expiry and report ok false.
func (d Duration) TTL() (time.Duration, bool) {
	switch d {
	case Duration7d:
		return 7 * 24 * time.Hour, true
	case Duration24h:
		return 24 * time.Hour, true
	case DurationSession:
		return 2 * time.Hour, true
	default:
		return 0, false
	}
}

func (d Duration) valid() bool {
	switch d {
	case DurationPermanent, Duration7d, Duration24h, DurationSession:
		return true
	}
	return false
}

// defaultDuration is used when the model gives no usable hint.
func defaultDuration(t memory.MemoryType) Duration {
	switch t {
	case memory.TypeRule:
		return Duration24h
	case memory.TypeError:
		return Duration7d
	default:
		return DurationPermanent
	}
}

// Item is one memory candidate produced by extraction.
type Item struct {
	Type       memory.MemoryType `json:"type"`
	Subject    string            `json:"subject,omitempty"`
	Predicate  string            `json:"predicate,omitempty"`
	Content    string            `json:"content"`
	Importance float64           `json:"importance"`
	Duration   Duration          `json:"duration"`
	IsUpdate   bool              `json:"is_update,omitempty"`
	UpdateHint string            `json:"update_hint,omitempty"`
}

// Priority derives retention priority from importance: permanent at 0.85 or
// for rules, long_term at 0.6, otherwise short_term.
func (it Item) Priority() memory.Priority {
	return PriorityFor(it.Type, it.Importance)
}

// PriorityFor applies the importance thresholds to any memory.
func PriorityFor(t memory.MemoryType, importance float64) memory.Priority {
	switch {
	case importance >= 0.85 || t == memory.TypeRule:
		return memory.PriorityPermanent
	case importance >= 0.6:
		return memory.PriorityLongTerm
	default:
		return memory.PriorityShortTerm
	}
}

// priorityTTL is the fallback retention when no duration hint applies.
var priorityTTL = map[memory.Priority]time.Duration{
	memory.PriorityTransient: 24 * time.Hour,
	memory.PriorityShortTerm: 3 * 24 * time.Hour,
	memory.PriorityLongTerm:  30 * 24 * time.Hour,
}

// ApplyRetention sets m.ExpiresAt from the duration hint when it is valid,
// otherwise from m's priority. An existing expiry is left alone.
func ApplyRetention(m *memory.SemanticMemory, d Duration, now time.Time) {
	if m.ExpiresAt != nil {
		return
	}

	var ttl time.Duration
	if d.valid() {
		var ok bool
		if ttl, ok = d.TTL(); !ok {
			return
		}
	} else {
		var ok bool
		if ttl, ok = priorityTTL[m.Priority]; !ok {
			return
		}
	}
	exp := now.Add(ttl).UTC()
	m.ExpiresAt = &exp
}

// ToMemory builds a new semantic memory from the item with priority and
// retention applied.
func (it Item) ToMemory(source, episodeID string, now time.Time) *memory.SemanticMemory {
	m := memory.NewSemanticMemory(it.Type, it.Content)
	m.Priority = it.Priority()
	m.Subject = it.Subject
	m.Predicate = it.Predicate
	m.ImportanceScore = it.Importance
	m.Source = source
	m.SourceEpisodeID = episodeID
	m.Tags = []string{strings.ToLower(string(it.Type))}
	m.Clamp()
	ApplyRetention(m, it.Duration, now)
	return m
}

// CitationScore is the thinker's verdict on whether a retrieved memory helped.
type CitationScore struct {
	MemoryID string `json:"memory_id"`
	Useful   bool   `json:"useful"`
}

// CitedMemory is a memory surfaced during a session, offered for scoring.
type CitedMemory struct {
	ID      string
	Content string
}
