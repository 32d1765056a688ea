package manager

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory/local"
	"github.com/papercomputeco/mnemo/pkg/retrieval"
)

// Section headings of the injection context.
const (
	SectionCore     = "Core Memory"
	SectionRelevant = "Relevant Memories"
	SectionKeyword  = "Keyword Matches"
)

const (
	keywordLimit     = 5
	keywordMinLength = 3
)

// GetInjectionContext builds the memory block for a prompt about task. The
// digest is always included when present. Ranked retrieval runs next; when
// it fails or finds nothing, a substring keyword scan over the cached
// memories takes its place, so a store holding a matching memory always
// yields a result. Each source is labelled with its own section heading.
func (m *Manager) GetInjectionContext(ctx context.Context, task string) string {
	var sections []string

	if m.digest != nil {
		if core := stripTitle(m.digest.get()); core != "" {
			sections = append(sections, section(SectionCore, core))
		}
	}

	ranked, err := m.retrieval.Retrieve(ctx, task, retrieval.RetrieveOptions{
		RecentMessages: m.RecentMessages(),
		Persona:        m.persona,
		MaxTokens:      m.maxTokens,
	})
	switch {
	case err != nil:
		m.logger.Warn("ranked retrieval failed, using keyword fallback", "error", err)
	case strings.TrimSpace(ranked) == "":
		m.logger.Debug("ranked retrieval found nothing, using keyword fallback")
	}

	if err == nil && strings.TrimSpace(ranked) != "" {
		sections = append(sections, section(SectionRelevant, ranked))
	} else if matches := m.keywordSearch(task); matches != "" {
		sections = append(sections, section(SectionKeyword, matches))
	}

	return strings.Join(sections, "\n\n")
}

// keywordSearch matches cached memories containing any word of query longer
// than two characters.
func (m *Manager) keywordSearch(query string) string {
	var keywords []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(w) >= keywordMinLength {
			keywords = append(keywords, w)
		}
	}
	if len(keywords) == 0 {
		return ""
	}

	mems := m.cache.Search(local.Query{Keywords: keywords, Limit: keywordLimit})
	lines := make([]string, 0, len(mems))
	for _, mem := range mems {
		lines = append(lines, fmt.Sprintf("- [%s] %s", mem.Type, mem.Content))
	}
	return strings.Join(lines, "\n")
}

func section(title, body string) string {
	return "## " + title + "\n" + strings.TrimSpace(body)
}

// stripTitle drops a leading "# " title line, which the section heading
// replaces.
func stripTitle(digest string) string {
	digest = strings.TrimSpace(digest)
	if strings.HasPrefix(digest, "# ") {
		if i := strings.IndexByte(digest, '\n'); i >= 0 {
			return strings.TrimSpace(digest[i+1:])
		}
		return ""
	}
	return digest
}
