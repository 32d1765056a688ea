package memory

import "time"

// ToolCall is a tool invocation issued by the assistant during a turn.
type ToolCall struct {
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input,omitempty"`
}

// ToolResult is the output of a tool call, matched to it by ToolUseID.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ConversationTurn is one message of a session, with any tool traffic.
type ConversationTurn struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// Message is the lightweight role/content pair used for recent-context query
// augmentation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueueStatus is the state of an extraction queue item.
type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueDone       QueueStatus = "done"
	QueueFailed     QueueStatus = "failed"
)

// ExtractionItem is a conversation turn waiting for memory extraction.
// Once marked done or failed it is never delivered again.
type ExtractionItem struct {
	ID          int64        `json:"id"`
	SessionID   string       `json:"session_id"`
	TurnIndex   int          `json:"turn_index"`
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Status      QueueStatus  `json:"status"`
	Attempts    int          `json:"attempts"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Turn converts the queued item back into a conversation turn for extraction.
func (i *ExtractionItem) Turn() ConversationTurn {
	return ConversationTurn{
		Role:        "user",
		Content:     i.Content,
		Timestamp:   i.CreatedAt,
		ToolCalls:   i.ToolCalls,
		ToolResults: i.ToolResults,
	}
}
