package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/memory/local"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const defaultSearchLimit = 10

// AddMemory stores m as given, after clamping its scores and applying the
// retention of its priority. A live memory of the same type with the same
// content, ignoring case and spacing, makes it a duplicate: nothing is saved
// and ErrDuplicate is returned.
func (m *Manager) AddMemory(ctx context.Context, mem *memory.SemanticMemory) (string, error) {
	if mem == nil || strings.TrimSpace(mem.Content) == "" {
		return "", fmt.Errorf("memory content is required")
	}
	mem = mem.Clone()
	mem.Clamp()

	key := normalizeContent(mem.Content)
	for _, existing := range m.cache.Search(local.Query{Type: mem.Type}) {
		if normalizeContent(existing.Content) == key {
			return "", fmt.Errorf("%w: %s", ErrDuplicate, existing.ID)
		}
	}

	extractor.ApplyRetention(mem, "", m.now())
	if err := m.store.SaveMemory(ctx, mem); err != nil {
		return "", fmt.Errorf("save memory: %w", err)
	}
	m.cache.Put(mem)
	m.indexMemory(ctx, mem)

	m.logger.Debug("added memory", "id", mem.ID, "type", mem.Type)
	return mem.ID, nil
}

func normalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// GetMemory returns a memory and records the access.
func (m *Manager) GetMemory(ctx context.Context, id string) (*memory.SemanticMemory, error) {
	mem, err := m.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	m.cache.Put(mem)
	return mem, nil
}

// SearchOptions filters SearchMemories.
type SearchOptions struct {
	// Query must appear in the content, case-insensitively. Empty matches
	// everything.
	Query string
	Type  memory.MemoryType

	// Tags match when the memory carries any of them.
	Tags  []string
	Limit int
}

// SearchMemories filters live memories by substring, type and tags, most
// important first. It reads the local cache and never touches a search
// backend.
func (m *Manager) SearchMemories(o SearchOptions) []*memory.SemanticMemory {
	limit := o.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return m.cache.Search(local.Query{
		Text:  o.Query,
		Type:  o.Type,
		Tags:  o.Tags,
		Limit: limit,
	})
}

// Memories returns every live memory, most important first.
func (m *Manager) Memories() []*memory.SemanticMemory {
	return m.cache.Search(local.Query{})
}

// DeleteMemory removes a memory from the store, the cache and the search
// backend. Returns false when it did not exist.
func (m *Manager) DeleteMemory(ctx context.Context, id string) (bool, error) {
	ok, err := m.store.DeleteMemory(ctx, id)
	if err != nil {
		return false, err
	}
	m.cache.Delete(id)
	if m.backend != m.keyword && m.backend.Available() {
		if err := m.backend.Delete(ctx, id); err != nil {
			m.logger.Warn("removing memory from backend failed", "id", id, "error", err)
		}
	}
	return ok, nil
}

// RecordAttachment stores a, attributing it to the active session when it
// names none. Returns the attachment id.
func (m *Manager) RecordAttachment(ctx context.Context, a *memory.Attachment) (string, error) {
	if a == nil || (a.Filename == "" && a.OriginalFilename == "" && a.URL == "" && a.LocalPath == "") {
		return "", fmt.Errorf("attachment needs a filename, path or url")
	}
	att := *a
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	if att.SessionID == "" {
		att.SessionID = m.SessionID()
	}
	if att.OriginalFilename == "" {
		att.OriginalFilename = att.Filename
	}
	if att.CreatedAt.IsZero() {
		att.CreatedAt = m.now().UTC()
	}
	att.Direction = memory.ParseDirection(string(att.Direction))

	if err := m.store.SaveAttachment(ctx, &att); err != nil {
		return "", fmt.Errorf("save attachment: %w", err)
	}
	a.ID = att.ID
	m.logger.Info("recorded attachment", "id", att.ID, "filename", att.Filename, "direction", att.Direction, "mime_type", att.MimeType)
	return att.ID, nil
}

// SearchAttachments finds attachments by text, mime prefix, direction and
// session, e.g. the cat picture the user sent last week.
func (m *Manager) SearchAttachments(ctx context.Context, q storage.AttachmentQuery) ([]*memory.Attachment, error) {
	return m.store.SearchAttachments(ctx, q)
}

// GetAttachment returns one attachment.
func (m *Manager) GetAttachment(ctx context.Context, id string) (*memory.Attachment, error) {
	return m.store.GetAttachment(ctx, id)
}
