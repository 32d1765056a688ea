package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction records whether media entered or left the conversation.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection normalizes s, defaulting to inbound for unknown values.
func ParseDirection(s string) Direction {
	if Direction(strings.ToLower(strings.TrimSpace(s))) == DirectionOutbound {
		return DirectionOutbound
	}
	return DirectionInbound
}

// DirectionForRole infers the attachment direction from a turn role: media
// on user turns is inbound, anything else is outbound.
func DirectionForRole(role string) Direction {
	if strings.EqualFold(role, "user") {
		return DirectionInbound
	}
	return DirectionOutbound
}

// Attachment is a file or media item seen in a conversation turn.
type Attachment struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id,omitempty"`
	EpisodeID        string    `json:"episode_id,omitempty"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	MimeType         string    `json:"mime_type,omitempty"`
	FileSize         int64     `json:"file_size,omitempty"`
	LocalPath        string    `json:"local_path,omitempty"`
	URL              string    `json:"url,omitempty"`
	Direction        Direction `json:"direction"`
	Description      string    `json:"description,omitempty"`
	Transcription    string    `json:"transcription,omitempty"`
	ExtractedText    string    `json:"extracted_text,omitempty"`
	Tags             []string  `json:"tags"`
	LinkedMemoryIDs  []string  `json:"linked_memory_ids"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewAttachment returns an inbound attachment with a fresh id.
func NewAttachment(filename string) *Attachment {
	return &Attachment{
		ID:               uuid.NewString(),
		Filename:         filename,
		OriginalFilename: filename,
		Direction:        DirectionInbound,
		Tags:             []string{},
		LinkedMemoryIDs:  []string{},
		CreatedAt:        time.Now().UTC(),
	}
}

// SearchableText joins every textual field that attachment search matches on.
func (a *Attachment) SearchableText() string {
	parts := make([]string, 0, 6+len(a.Tags))
	for _, s := range []string{a.Filename, a.OriginalFilename, a.Description, a.Transcription, a.ExtractedText} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, a.Tags...)
	return strings.Join(parts, " ")
}

// HasContent reports whether the attachment carries anything worth keeping
// beyond its file reference.
func (a *Attachment) HasContent() bool {
	return a.Description != "" || a.Transcription != "" || a.ExtractedText != "" || len(a.LinkedMemoryIDs) > 0
}
