package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// conversationWindow is how many trailing turns a whole-conversation prompt
// shows, each cut to conversationTurnRunes.
const (
	conversationWindow    = 30
	conversationTurnRunes = 500
)

const conversationSystem = "You extract long-term memories about the user. Reply with NONE or a JSON array only."

const conversationScoringSystem = "You extract memories and score cited ones. Reply with one JSON object holding memories and citation_scores."

const conversationPrompt = `Review the whole conversation and decide whether it reveals anything about the user worth remembering long term.

## Conversation
%s

Remember who the user is, not what they asked for this time: identity, lasting preferences, behaviour rules for the assistant, technical environment, reusable approaches, lessons to avoid repeating. Skip one-off requests, task outputs, greetings and the assistant's own reports.

For each item output JSON:
[
  {
    "type": "FACT|PREFERENCE|RULE|SKILL|ERROR",
    "subject": "who or what it is about",
    "predicate": "the attribute",
    "content": "a concise restatement",
    "importance": 0.5-1.0,
    "duration": "permanent|7d|24h|session"
  }
]

Output at most 3 items and mention repeated information once. If nothing qualifies output only: NONE`

const citationSection = `

## Memories retrieved during this conversation
%s

Judge each one: did it actually help with this conversation? Add a "citation_scores" field:
"citation_scores": [{"memory_id": "...", "useful": true}]

Final output format: {"memories": [...], "citation_scores": [...]}
Use an empty memories array when there is nothing to extract. Output JSON only.`

const experienceSystem = "You distil reusable task experience. Reply with NONE or a JSON array only."

const experiencePrompt = `Review the conversation and decide whether it holds a reusable lesson about doing this kind of task.

## Conversation
%s

Record how a class of task should or should not be done: pitfalls and their causes, approaches that worked, which tool suits which situation, environment caveats. Do not record what was done this time, concrete paths, URLs or parameter values, or facts about the user.

For each lesson output JSON:
[
  {
    "type": "SKILL|ERROR",
    "subject": "the kind of task or problem",
    "predicate": "best practice|pitfall|tool choice",
    "content": "a lesson that directly guides the next attempt",
    "importance": 0.5-1.0,
    "duration": "permanent|7d"
  }
]

Output at most 2 items. If nothing qualifies output only: NONE`

// ExtractFromConversation asks for user-profile memories across a whole
// conversation. When cited memories are given, the same call scores whether
// each one helped. Conversations without a substantive user turn are
// skipped.
func (e *Extractor) ExtractFromConversation(ctx context.Context, turns []memory.ConversationTurn, cited []CitedMemory) ([]Item, []CitationScore) {
	if e.thinker == nil || len(turns) == 0 {
		return nil, nil
	}

	substantive := false
	for _, t := range turns {
		if t.Role == "user" && utf8.RuneCountInString(strings.TrimSpace(t.Content)) >= e.minTurnLength {
			substantive = true
			break
		}
	}
	if !substantive {
		return nil, nil
	}

	transcript := renderConversation(turns)
	if transcript == "" {
		return nil, nil
	}
	prompt := fmt.Sprintf(conversationPrompt, transcript)

	if len(cited) == 0 {
		reply, ok := e.ask(ctx, "extract_conversation", prompt, conversationSystem)
		if !ok {
			return nil, nil
		}
		return parseItemList(reply), nil
	}

	lines := make([]string, 0, len(cited))
	for _, c := range cited {
		lines = append(lines, fmt.Sprintf("- ID=%s | %s", c.ID, truncate(c.Content, 150)))
	}
	prompt += fmt.Sprintf(citationSection, strings.Join(lines, "\n"))

	reply, ok := e.ask(ctx, "extract_conversation", prompt, conversationScoringSystem)
	if !ok {
		return nil, nil
	}

	var scored struct {
		Memories       []json.RawMessage `json:"memories"`
		CitationScores []CitationScore   `json:"citation_scores"`
	}
	raw := findJSON(reply, '{', '}')
	if raw == "" || json.Unmarshal([]byte(raw), &scored) != nil {
		return parseItemList(reply), nil
	}

	var scores []CitationScore
	for _, s := range scored.CitationScores {
		if s.MemoryID != "" {
			scores = append(scores, s)
		}
	}
	return normalizeItems(scored.Memories), scores
}

// ExtractExperience asks for reusable task lessons. It needs at least two
// assistant turns to have anything to learn from.
func (e *Extractor) ExtractExperience(ctx context.Context, turns []memory.ConversationTurn) []Item {
	if e.thinker == nil || len(turns) == 0 {
		return nil
	}

	assistant := 0
	for _, t := range turns {
		if t.Role == "assistant" && t.Content != "" {
			assistant++
		}
	}
	if assistant < 2 {
		return nil
	}

	transcript := renderConversation(turns)
	if transcript == "" {
		return nil
	}
	reply, ok := e.ask(ctx, "extract_experience", fmt.Sprintf(experiencePrompt, transcript), experienceSystem)
	if !ok {
		return nil
	}
	return parseItemList(reply)
}

func renderConversation(turns []memory.ConversationTurn) string {
	var lines []string
	for _, t := range turns[max(0, len(turns)-conversationWindow):] {
		label := "Assistant"
		if t.Role == "user" {
			label = "User"
		}
		if content := truncate(t.Content, conversationTurnRunes); strings.TrimSpace(content) != "" {
			lines = append(lines, fmt.Sprintf("[%s]: %s", label, content))
		}
		if tools := BuildToolContext(t.ToolCalls, t.ToolResults); tools != "" {
			lines = append(lines, tools)
		}
	}
	return strings.Join(lines, "\n")
}
