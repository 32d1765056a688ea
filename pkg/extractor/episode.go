package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

const episodeSystem = "You summarise interaction episodes. Reply with JSON only."

const episodePrompt = `Summarise the following conversation as an episode.

Conversation:
%s

Reply with JSON:
{
  "summary": "what happened, in one paragraph",
  "goal": "what the user was trying to achieve",
  "outcome": "success|partial|failed|ongoing",
  "entities": ["files, projects or concepts involved"],
  "tools_used": ["tool names"]
}`

// Parameters recorded on action nodes.
var actionParamNames = []string{"command", "path", "query", "url", "filename"}

var (
	entityPathRe = regexp.MustCompile(`[A-Za-z]:[\\/][^\s"']+`)
	entityFileRe = regexp.MustCompile(`[\w-]+\.(?:py|js|ts|go|md|json|yaml|toml|sh)\b`)
)

const maxEntities = 20

// GenerateEpisode summarises turns into an episode. It returns nil only for
// empty input. Without a usable thinker reply the summary is built from the
// first user messages, the goal from the first turn and the entities from
// paths and file names in the text.
func (e *Extractor) GenerateEpisode(ctx context.Context, turns []memory.ConversationTurn, sessionID, source string) *memory.Episode {
	if len(turns) == 0 {
		return nil
	}

	ep := memory.NewEpisode(sessionID)
	if source != "" {
		ep.Source = source
	}
	if ts := turns[0].Timestamp; !ts.IsZero() {
		ep.StartedAt = ts.UTC()
	}
	if ts := turns[len(turns)-1].Timestamp; !ts.IsZero() {
		ep.EndedAt = ts.UTC()
	}
	ep.ActionNodes = actionNodes(turns)
	for _, n := range ep.ActionNodes {
		if n.ToolName != "" && !slices.Contains(ep.ToolsUsed, n.ToolName) {
			ep.ToolsUsed = append(ep.ToolsUsed, n.ToolName)
		}
	}

	if reply, ok := e.ask(ctx, "generate_episode", fmt.Sprintf(episodePrompt, episodeTranscript(turns)), episodeSystem); ok {
		e.applyEpisodeReply(ep, reply)
	}

	if ep.Summary == "" {
		ep.Summary = fallbackSummary(turns)
		ep.Goal = truncate(turns[0].Content, 100)
		ep.Entities = extractEntities(turns)
	}
	return ep
}

func (e *Extractor) applyEpisodeReply(ep *memory.Episode, reply string) {
	raw := findJSON(reply, '{', '}')
	if raw == "" {
		return
	}
	var data struct {
		Summary   string   `json:"summary"`
		Goal      string   `json:"goal"`
		Outcome   string   `json:"outcome"`
		Entities  []string `json:"entities"`
		ToolsUsed []string `json:"tools_used"`
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		e.logger.Debug("unparseable episode reply", "error", err)
		return
	}

	ep.Summary = strings.TrimSpace(data.Summary)
	ep.Goal = strings.TrimSpace(data.Goal)
	if o := strings.TrimSpace(data.Outcome); o != "" {
		ep.Outcome = o
	}
	if data.Entities != nil {
		ep.Entities = data.Entities
	}
	for _, tool := range data.ToolsUsed {
		if tool != "" && !slices.Contains(ep.ToolsUsed, tool) {
			ep.ToolsUsed = append(ep.ToolsUsed, tool)
		}
	}
}

func episodeTranscript(turns []memory.ConversationTurn) string {
	var b strings.Builder
	for _, t := range turns[max(0, len(turns)-20):] {
		fmt.Fprintf(&b, "[%s]: %s", t.Role, truncate(t.Content, 300))
		if n := len(t.ToolCalls); n > 0 {
			fmt.Fprintf(&b, " [called %d tools]", n)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// actionNodes records every tool call. A call is matched to the result with
// the same tool-use id; a call without an id takes the first result.
func actionNodes(turns []memory.ConversationTurn) []memory.ActionNode {
	nodes := []memory.ActionNode{}
	for _, t := range turns {
		for _, tc := range t.ToolCalls {
			node := memory.ActionNode{
				ToolName:  tc.Name,
				Success:   true,
				Timestamp: t.Timestamp,
			}
			for _, k := range actionParamNames {
				if v, ok := tc.Input[k]; ok {
					if node.KeyParams == nil {
						node.KeyParams = make(map[string]string)
					}
					node.KeyParams[k] = truncate(fmt.Sprint(v), 200)
				}
			}
			for _, tr := range t.ToolResults {
				if tc.ID != "" && tr.ToolUseID != tc.ID {
					continue
				}
				node.ResultSummary = truncate(tr.Content, 200)
				if tr.IsError {
					node.Success = false
					node.ErrorMessage = node.ResultSummary
				}
				break
			}
			nodes = append(nodes, node)
		}
	}
	return nodes
}

func fallbackSummary(turns []memory.ConversationTurn) string {
	var msgs []string
	for _, t := range turns {
		if t.Role == "user" && t.Content != "" {
			msgs = append(msgs, truncate(t.Content, 100))
			if len(msgs) == 3 {
				break
			}
		}
	}
	if len(msgs) > 0 {
		return "Conversation about: " + strings.Join(msgs, "; ")
	}
	return fmt.Sprintf("%d conversation turns", len(turns))
}

func extractEntities(turns []memory.ConversationTurn) []string {
	entities := []string{}
	add := func(s string) {
		if len(entities) < maxEntities && !slices.Contains(entities, s) {
			entities = append(entities, s)
		}
	}
	for _, t := range turns {
		for _, m := range entityPathRe.FindAllString(t.Content, -1) {
			add(m)
		}
		for _, m := range entityFileRe.FindAllString(t.Content, -1) {
			add(m)
		}
	}
	return entities
}

// progressStamp formats an episode date for scratchpad progress bullets.
func progressStamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("01/02")
}
