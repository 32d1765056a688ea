package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultOutcome       = "completed"
	DefaultEpisodeSource = "session_end"
)

// ActionNode is one tool invocation recorded inside an episode.
type ActionNode struct {
	ToolName      string            `json:"tool_name"`
	KeyParams     map[string]string `json:"key_params,omitempty"`
	ResultSummary string            `json:"result_summary,omitempty"`
	Success       bool              `json:"success"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	Decision      string            `json:"decision,omitempty"`
	Timestamp     time.Time         `json:"timestamp,omitzero"`
}

// Episode is the durable summary of one completed session or task.
type Episode struct {
	ID              string       `json:"id"`
	SessionID       string       `json:"session_id"`
	Summary         string       `json:"summary"`
	Goal            string       `json:"goal,omitempty"`
	Outcome         string       `json:"outcome"`
	ActionNodes     []ActionNode `json:"action_nodes"`
	Entities        []string     `json:"entities"`
	ToolsUsed       []string     `json:"tools_used"`
	LinkedMemoryIDs []string     `json:"linked_memory_ids"`
	StartedAt       time.Time    `json:"started_at,omitzero"`
	EndedAt         time.Time    `json:"ended_at,omitzero"`
	ImportanceScore float64      `json:"importance_score"`
	AccessCount     int          `json:"access_count"`
	Source          string       `json:"source"`
}

// NewEpisode returns an episode for sessionID with default outcome, source and
// importance.
func NewEpisode(sessionID string) *Episode {
	now := time.Now().UTC()
	return &Episode{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Outcome:         DefaultOutcome,
		ActionNodes:     []ActionNode{},
		Entities:        []string{},
		ToolsUsed:       []string{},
		LinkedMemoryIDs: []string{},
		StartedAt:       now,
		EndedAt:         now,
		ImportanceScore: DefaultImportance,
		Source:          DefaultEpisodeSource,
	}
}

// ToMarkdown renders the episode on a single line for context injection.
func (e *Episode) ToMarkdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "- [episode] %s", e.Summary)

	var details []string
	if e.Goal != "" {
		details = append(details, "goal: "+e.Goal)
	}
	if e.Outcome != "" {
		details = append(details, "outcome: "+e.Outcome)
	}
	if len(e.ToolsUsed) > 0 {
		details = append(details, "tools: "+strings.Join(e.ToolsUsed, ", "))
	}
	if len(details) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(details, "; "))
	}
	return b.String()
}

// Clone returns a deep copy of the episode.
func (e *Episode) Clone() *Episode {
	if e == nil {
		return nil
	}
	c := *e
	c.ActionNodes = make([]ActionNode, len(e.ActionNodes))
	for i, n := range e.ActionNodes {
		c.ActionNodes[i] = n
		if n.KeyParams != nil {
			params := make(map[string]string, len(n.KeyParams))
			for k, v := range n.KeyParams {
				params[k] = v
			}
			c.ActionNodes[i].KeyParams = params
		}
	}
	c.Entities = append([]string{}, e.Entities...)
	c.ToolsUsed = append([]string{}, e.ToolsUsed...)
	c.LinkedMemoryIDs = append([]string{}, e.LinkedMemoryIDs...)
	return &c
}
