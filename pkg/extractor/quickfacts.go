package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Cues for the deterministic quick-fact pass. Matching is case-insensitive.
var (
	preferenceCues = []string{"i prefer", "i like", "i usually", "i'm used to", "from now on please", "我喜欢", "我更喜欢", "我习惯", "我偏好", "以后请", "请以后"}
	ruleCues       = []string{"always", "never", "must", "don't", "do not", "不要", "必须", "禁止", "永远不要", "务必"}
	rememberCues   = []string{"remember", "记住"}
	strongRuleCues = []string{"never", "永远不要"}

	quickPathRe = regexp.MustCompile(`[A-Za-z]:\\[^\s"']{3,}`)
)

const (
	quickFactSource   = "quick_facts"
	quickContentRunes = 200
	quickFactsPerTurn = 2
)

// ExtractQuickFacts captures strong preference, rule and "remember this"
// signals from user messages without calling the thinker. It is meant for
// moments when the conversation is about to be compressed and there is no
// time for a model round trip. At most two memories come from one message.
func (e *Extractor) ExtractQuickFacts(messages []memory.Message) []*memory.SemanticMemory {
	var out []*memory.SemanticMemory
	for _, msg := range messages {
		if msg.Role != "user" {
			continue
		}
		text := strings.TrimSpace(msg.Content)
		if utf8.RuneCountInString(text) < e.minTurnLength {
			continue
		}
		out = append(out, quickFactsFrom(text)...)
	}
	return out
}

func quickFactsFrom(text string) []*memory.SemanticMemory {
	lower := strings.ToLower(text)
	content := truncate(text, quickContentRunes)

	var found []*memory.SemanticMemory
	add := func(t memory.MemoryType, importance float64, tag, body string) {
		if len(found) == quickFactsPerTurn {
			return
		}
		m := memory.NewSemanticMemory(t, body)
		m.Priority = memory.PriorityLongTerm
		m.ImportanceScore = importance
		m.Source = quickFactSource
		m.Tags = []string{tag}
		found = append(found, m)
	}

	if containsAny(lower, preferenceCues) {
		add(memory.TypePreference, 0.7, "preference", content)
	}
	if containsAny(lower, ruleCues) {
		importance := 0.7
		if containsAny(lower, strongRuleCues) {
			importance = 0.8
		}
		add(memory.TypeRule, importance, "rule", content)
	}
	if containsAny(lower, rememberCues) {
		add(memory.TypeFact, 0.6, "fact", content)
	}
	if p := quickPathRe.FindString(text); p != "" {
		add(memory.TypeFact, 0.6, "path", "User mentioned path: "+p)
	}
	return found
}

func containsAny(s string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}
