package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

const turnSystem = "You extract long-term memories. Reply with NONE or a JSON array only."

const turnPrompt = `Decide whether this conversation turn contains anything worth remembering long term.

Turn:
[%s]: %s
%s
%s

Remember who the user is, not what they asked for this time. Ask: will this still matter in a new conversation a month from now?

Worth remembering:
- identity: name, how to address them, role, timezone
- lasting preferences: communication style, language, tooling taste
- behaviour rules the user wants the assistant to always follow
- technical environment: OS, stack, editors
- reusable approaches to a class of problem
- lessons about operations to avoid

Never remember:
- one-off task requests, their parameters or outputs
- greetings, thanks, confirmations
- system state, stack traces, debug output
- the assistant's own replies or reports

For each item output JSON:
[
  {
    "type": "FACT|PREFERENCE|RULE|SKILL|ERROR",
    "subject": "who or what it is about",
    "predicate": "the attribute, e.g. prefers, version, uses",
    "content": "a concise restatement, not a quote",
    "importance": 0.5-1.0,
    "duration": "permanent|7d|24h|session",
    "is_update": false,
    "update_hint": ""
  }
]

Set is_update to true when the item revises a known fact (a version bump, say).
Output at most 2 items. If nothing qualifies output only: NONE`

// Tool parameters worth showing to the model.
var keyParamNames = []string{"command", "path", "query", "url", "content", "filename"}

// ExtractFromTurn asks the thinker for memory candidates in one turn.
// Turns shorter than the minimum length without tool calls are skipped
// without a thinker call. extra is optional surrounding context.
func (e *Extractor) ExtractFromTurn(ctx context.Context, turn memory.ConversationTurn, extra string) []Item {
	if e.thinker == nil {
		return nil
	}
	content := strings.TrimSpace(turn.Content)
	if utf8.RuneCountInString(content) < e.minTurnLength && len(turn.ToolCalls) == 0 {
		return nil
	}

	if extra != "" {
		extra = "Context: " + extra
	}
	prompt := fmt.Sprintf(turnPrompt, turn.Role, content, BuildToolContext(turn.ToolCalls, turn.ToolResults), extra)

	reply, ok := e.ask(ctx, "extract_turn", prompt, turnSystem)
	if !ok {
		return nil
	}
	items := parseItemList(reply)
	if len(items) > 0 {
		e.logger.Debug("extracted memories from turn", "role", turn.Role, "items", len(items))
	}
	return items
}

// BuildToolContext renders up to five tool calls with their key parameters
// and up to three results. Error results carry an explicit ERROR marker.
func BuildToolContext(calls []memory.ToolCall, results []memory.ToolResult) string {
	if len(calls) == 0 {
		return ""
	}

	lines := []string{"", "Tool calls:"}
	for _, tc := range calls[:min(len(calls), 5)] {
		name := tc.Name
		if name == "" {
			name = "unknown"
		}
		params := make(map[string]any)
		for _, k := range keyParamNames {
			if v, ok := tc.Input[k]; ok {
				params[k] = v
			}
		}
		encoded, _ := json.Marshal(params)
		lines = append(lines, fmt.Sprintf("  - %s(%s)", name, truncate(string(encoded), 200)))
	}

	for _, tr := range results[:min(len(results), 3)] {
		prefix := "Result"
		if tr.IsError {
			prefix = "ERROR"
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", prefix, truncate(tr.Content, 150)))
	}
	return strings.Join(lines, "\n")
}
