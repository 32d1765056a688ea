package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// Scratchpad section headings.
const (
	SectionActiveProjects = "Active Projects"
	SectionRecentProgress = "Recent Progress"
	SectionOpenQuestions  = "Open Questions"
	SectionNextSteps      = "Next Steps"
)

const maxScratchpadRunes = 2000

const scratchpadPrompt = `You manage the working memory of an AI agent. Update the scratchpad using the latest episode.

Current scratchpad:
%s

Latest episode:
%s

Output the complete updated scratchpad in markdown, at most 2000 characters:

## Active Projects
- ...

## Recent Progress
- ...

## Open Questions
- ...

## Next Steps
- ...`

// UpdateScratchpad folds episode into current, which may be nil. With the
// thinker the whole scratchpad is regenerated and its sections parsed.
// Otherwise a dated bullet with the episode summary is added under the
// recent-progress heading, creating the heading or the scratchpad as
// needed. current is never modified.
func (e *Extractor) UpdateScratchpad(ctx context.Context, current *memory.Scratchpad, episode *memory.Episode) *memory.Scratchpad {
	pad := current.Clone()
	if pad == nil {
		pad = memory.NewScratchpad(memory.DefaultUserID)
	}
	if episode == nil {
		return pad
	}

	existing := pad.Content
	if strings.TrimSpace(existing) == "" {
		existing = "(empty)"
	}
	summary := episode.Summary
	if summary == "" {
		summary = episode.ToMarkdown()
	}

	if reply, ok := e.ask(ctx, "update_scratchpad", fmt.Sprintf(scratchpadPrompt, existing, summary), ""); ok {
		pad.Content = truncate(reply, maxScratchpadRunes)
		pad.ActiveProjects = ParseSection(reply, SectionActiveProjects)
		pad.CurrentFocus = ""
		if len(pad.ActiveProjects) > 0 {
			pad.CurrentFocus = pad.ActiveProjects[0]
		}
		pad.OpenQuestions = ParseSection(reply, SectionOpenQuestions)
		pad.NextSteps = ParseSection(reply, SectionNextSteps)
		pad.UpdatedAt = e.now().UTC()
		return pad
	}

	if episode.Summary != "" {
		bullet := fmt.Sprintf("- %s: %s", progressStamp(episode.EndedAt), truncate(episode.Summary, 100))
		pad.Content = AppendToSection(pad.Content, SectionRecentProgress, bullet)
	}
	pad.UpdatedAt = e.now().UTC()
	return pad
}

// ParseSection returns up to ten "- " items listed directly under the
// "## section" heading of text.
func ParseSection(text, section string) []string {
	re := regexp.MustCompile(`(?m)^##\s*` + regexp.QuoteMeta(section) + `\s*\n((?:- .+\n?)*)`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return []string{}
	}

	items := []string{}
	for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
		line = strings.TrimSpace(line)
		if item, ok := strings.CutPrefix(line, "- "); ok {
			items = append(items, strings.TrimSpace(item))
		}
		if len(items) == 10 {
			break
		}
	}
	return items
}

// AppendToSection inserts item as the first line under "## section",
// appending the heading when content has none.
func AppendToSection(content, section, item string) string {
	re := regexp.MustCompile(`(?m)^##\s*` + regexp.QuoteMeta(section) + `\s*\n`)
	if loc := re.FindStringIndex(content); loc != nil {
		return content[:loc[1]] + item + "\n" + content[loc[1]:]
	}
	return content + "\n\n## " + section + "\n" + item + "\n"
}
