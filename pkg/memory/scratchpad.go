package memory

import (
	"strings"
	"time"
)

// DefaultUserID identifies the scratchpad row when no user is given.
const DefaultUserID = "default"

// Scratchpad is the continuously updated working memory of one user.
type Scratchpad struct {
	UserID         string    `json:"user_id"`
	Content        string    `json:"content"`
	ActiveProjects []string  `json:"active_projects"`
	CurrentFocus   string    `json:"current_focus,omitempty"`
	OpenQuestions  []string  `json:"open_questions"`
	NextSteps      []string  `json:"next_steps"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewScratchpad returns an empty scratchpad for userID.
func NewScratchpad(userID string) *Scratchpad {
	if userID == "" {
		userID = DefaultUserID
	}
	return &Scratchpad{
		UserID:         userID,
		ActiveProjects: []string{},
		OpenQuestions:  []string{},
		NextSteps:      []string{},
		UpdatedAt:      time.Now().UTC(),
	}
}

// ToMarkdown returns Content when set, or renders the structured lists.
func (s *Scratchpad) ToMarkdown() string {
	if strings.TrimSpace(s.Content) != "" {
		return s.Content
	}

	var b strings.Builder
	b.WriteString("# Scratchpad\n")
	if s.CurrentFocus != "" {
		b.WriteString("\n## Current Focus\n")
		b.WriteString(s.CurrentFocus)
		b.WriteString("\n")
	}
	writeList(&b, "Active Projects", s.ActiveProjects)
	writeList(&b, "Open Questions", s.OpenQuestions)
	writeList(&b, "Next Steps", s.NextSteps)
	return b.String()
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n## ")
	b.WriteString(heading)
	b.WriteString("\n")
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

// Clone returns a deep copy of the scratchpad.
func (s *Scratchpad) Clone() *Scratchpad {
	if s == nil {
		return nil
	}
	c := *s
	c.ActiveProjects = append([]string{}, s.ActiveProjects...)
	c.OpenQuestions = append([]string{}, s.OpenQuestions...)
	c.NextSteps = append([]string{}, s.NextSteps...)
	return &c
}
