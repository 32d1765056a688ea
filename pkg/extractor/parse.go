package extractor

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// minItemContent is the shortest content, in runes, kept after parsing.
const minItemContent = 5

// rawItem is an item as the model writes it. Fields are lenient: importance
// may arrive as a string, type in any case.
type rawItem struct {
	Type       string    `json:"type"`
	Subject    string    `json:"subject"`
	Predicate  string    `json:"predicate"`
	Content    string    `json:"content"`
	Importance flexFloat `json:"importance"`
	Duration   string    `json:"duration"`
	IsUpdate   bool      `json:"is_update"`
	UpdateHint string    `json:"update_hint"`
}

// flexFloat decodes a JSON number or numeric string. Anything else leaves it
// unset.
type flexFloat struct {
	v   float64
	set bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		f.v, f.set = v, true
	}
	return nil
}

func (f flexFloat) or(fallback float64) float64 {
	if !f.set {
		return fallback
	}
	return f.v
}

// findJSON returns the outermost span opened by open and closed by close,
// e.g. the array in "Here you go: [...]". Empty when there is none.
func findJSON(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// parseItemList parses the JSON array in text. Malformed output yields nil.
func parseItemList(text string) []Item {
	raw := findJSON(text, '[', ']')
	if raw == "" {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return normalizeItems(items)
}

// normalizeItems decodes each element independently so one bad entry does
// not discard its siblings.
func normalizeItems(elems []json.RawMessage) []Item {
	var out []Item
	for _, elem := range elems {
		var r rawItem
		if err := json.Unmarshal(elem, &r); err != nil {
			continue
		}
		content := strings.TrimSpace(r.Content)
		if utf8.RuneCountInString(content) < minItemContent {
			continue
		}

		t := itemType(r.Type)
		d := Duration(strings.ToLower(strings.TrimSpace(r.Duration)))
		if !d.valid() {
			d = defaultDuration(t)
		}

		out = append(out, Item{
			Type:       t,
			Subject:    strings.TrimSpace(r.Subject),
			Predicate:  strings.TrimSpace(r.Predicate),
			Content:    content,
			Importance: memory.Clamp01(r.Importance.or(memory.DefaultImportance), memory.DefaultImportance),
			Duration:   d,
			IsUpdate:   r.IsUpdate,
			UpdateHint: strings.TrimSpace(r.UpdateHint),
		})
	}
	return out
}

// itemType maps a model-written type onto a memory type. "experience" is a
// lesson and lands as a skill.
func itemType(s string) memory.MemoryType {
	if strings.EqualFold(strings.TrimSpace(s), "experience") {
		return memory.TypeSkill
	}
	t, _ := memory.ParseMemoryType(s)
	return t
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
