package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const memoryColumns = `id, type, priority, content, subject, predicate,
	importance_score, confidence, decay_rate, access_count, tags, source,
	source_episode_id, superseded_by, created_at, updated_at,
	last_accessed_at, expires_at`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SaveMemory inserts a memory or replaces every column of an existing one.
// Scores are clamped before writing.
func (s *Store) SaveMemory(ctx context.Context, m *memory.SemanticMemory) error {
	if m == nil {
		return nil
	}
	if !s.acquire() {
		return nil
	}
	defer s.release()

	return s.saveMemory(ctx, s.db, m)
}

func (s *Store) saveMemory(ctx context.Context, q querier, m *memory.SemanticMemory) error {
	c := m.Clone()
	c.Clamp()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}

	var expires sql.NullInt64
	if c.ExpiresAt != nil {
		expires = nullUnix(*c.ExpiresAt)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			priority = excluded.priority,
			content = excluded.content,
			subject = excluded.subject,
			predicate = excluded.predicate,
			importance_score = excluded.importance_score,
			confidence = excluded.confidence,
			decay_rate = excluded.decay_rate,
			access_count = excluded.access_count,
			tags = excluded.tags,
			source = excluded.source,
			source_episode_id = excluded.source_episode_id,
			superseded_by = excluded.superseded_by,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			last_accessed_at = excluded.last_accessed_at,
			expires_at = excluded.expires_at,
			search_text = excluded.search_text`,
		c.ID, string(c.Type), string(c.Priority), c.Content, c.Subject, c.Predicate,
		c.ImportanceScore, c.Confidence, c.DecayRate, c.AccessCount, encodeStrings(c.Tags), c.Source,
		c.SourceEpisodeID, c.SupersededBy, toUnix(c.CreatedAt), toUnix(c.UpdatedAt),
		nullUnix(c.LastAccessedAt), expires, s.searchText(c),
	)
	if err != nil {
		return fmt.Errorf("save memory %s: %w", c.ID, err)
	}
	return nil
}

// searchText is the segmented text indexed for keyword search.
func (s *Store) searchText(m *memory.SemanticMemory) string {
	parts := make([]string, 0, 2+len(m.Tags))
	if m.Subject != "" {
		parts = append(parts, m.Subject)
	}
	parts = append(parts, m.Content)
	parts = append(parts, m.Tags...)
	return s.segmenter.Segment(strings.Join(parts, " "))
}

// GetMemory returns the memory and records the access. A closed store
// returns nil without error.
func (s *Store) GetMemory(ctx context.Context, id string) (*memory.SemanticMemory, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		now.UnixNano(), id,
	); err != nil {
		return nil, fmt.Errorf("bump access for %s: %w", id, err)
	}
	return s.peekMemory(ctx, s.db, id)
}

// PeekMemory returns the memory without touching its access statistics.
func (s *Store) PeekMemory(ctx context.Context, id string) (*memory.SemanticMemory, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	return s.peekMemory(ctx, s.db, id)
}

func (s *Store) peekMemory(ctx context.Context, q querier, id string) (*memory.SemanticMemory, error) {
	row := q.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound{Kind: "memory", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return m, nil
}

// UpdateMemory applies a partial update inside one transaction.
func (s *Store) UpdateMemory(ctx context.Context, id string, u storage.MemoryUpdate) (bool, error) {
	if !s.acquire() {
		return false, nil
	}
	defer s.release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	m, err := s.peekMemory(ctx, tx, id)
	var nf storage.ErrNotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	applyUpdate(m, u)
	if err := s.saveMemory(ctx, tx, m); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update: %w", err)
	}
	return true, nil
}

func applyUpdate(m *memory.SemanticMemory, u storage.MemoryUpdate) {
	if u.Content != nil {
		m.Content = *u.Content
	}
	if u.Subject != nil {
		m.Subject = *u.Subject
	}
	if u.Predicate != nil {
		m.Predicate = *u.Predicate
	}
	if u.Priority != nil {
		m.Priority = *u.Priority
	}
	if u.ImportanceScore != nil {
		m.ImportanceScore = *u.ImportanceScore
	}
	if u.Confidence != nil {
		m.Confidence = *u.Confidence
	}
	if u.Tags != nil {
		m.Tags = append([]string{}, u.Tags...)
	}
	if u.SupersededBy != nil {
		m.SupersededBy = *u.SupersededBy
	}
	if u.ExpiresAt != nil {
		exp := *u.ExpiresAt
		m.ExpiresAt = &exp
	}
	if u.ClearExpiry {
		m.ExpiresAt = nil
	}
	m.UpdatedAt = time.Now().UTC()
}

// DeleteMemory removes a memory. The FTS triggers drop its index row.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	if !s.acquire() {
		return false, nil
	}
	defer s.release()

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete memory %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete memory %s: %w", id, err)
	}
	return n > 0, nil
}

// ListMemories returns memories matching f, most important first.
func (s *Store) ListMemories(ctx context.Context, f storage.MemoryFilter) ([]*memory.SemanticMemory, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.MinImportance > 0 {
		where = append(where, "importance_score >= ?")
		args = append(args, f.MinImportance)
	}
	if !f.IncludeSuperseded {
		where = append(where, "superseded_by = ''")
	}
	if !f.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < ?")
		args = append(args, f.UpdatedBefore.UnixNano())
	}

	query := `SELECT ` + memoryColumns + ` FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY importance_score DESC, updated_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return s.queryMemories(ctx, query, args...)
}

// LoadAllMemories returns every memory, including superseded ones.
func (s *Store) LoadAllMemories(ctx context.Context) ([]*memory.SemanticMemory, error) {
	return s.ListMemories(ctx, storage.MemoryFilter{IncludeSuperseded: true})
}

// FindSimilar looks up the newest live memory with the same subject and
// predicate. Both are compared case-insensitively.
func (s *Store) FindSimilar(ctx context.Context, subject, predicate string) (*memory.SemanticMemory, error) {
	subject = strings.TrimSpace(subject)
	predicate = strings.TrimSpace(predicate)
	if subject == "" || predicate == "" {
		return nil, nil
	}
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE lower(subject) = lower(?) AND lower(predicate) = lower(?) AND superseded_by = ''
		ORDER BY updated_at DESC
		LIMIT 1`,
		subject, predicate,
	)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find similar: %w", err)
	}
	return m, nil
}

// BumpAccess increments the access count of every id in one statement.
func (s *Store) BumpAccess(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if !s.acquire() {
		return nil
	}
	defer s.release()

	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UTC().UnixNano())
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("bump access: %w", err)
	}
	return nil
}

// CleanupExpired deletes memories whose expiry has passed. Memories without
// an expiry are never removed.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	if !s.acquire() {
		return 0, nil
	}
	defer s.release()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	if n > 0 {
		s.logger.Debug("removed expired memories", "count", n)
	}
	return int(n), nil
}

// CountMemories returns the number of stored memories.
func (s *Store) CountMemories(ctx context.Context) (int, error) {
	if !s.acquire() {
		return 0, nil
	}
	defer s.release()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *Store) queryMemories(ctx context.Context, query string, args ...any) ([]*memory.SemanticMemory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var result []*memory.SemanticMemory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanMemory(row scanner) (*memory.SemanticMemory, error) {
	var (
		m                   memory.SemanticMemory
		typ, priority, tags string
		created, updated    int64
		accessed, expires   sql.NullInt64
	)
	if err := row.Scan(
		&m.ID, &typ, &priority, &m.Content, &m.Subject, &m.Predicate,
		&m.ImportanceScore, &m.Confidence, &m.DecayRate, &m.AccessCount, &tags, &m.Source,
		&m.SourceEpisodeID, &m.SupersededBy, &created, &updated,
		&accessed, &expires,
	); err != nil {
		return nil, err
	}

	m.Type, _ = memory.ParseMemoryType(typ)
	m.Priority, _ = memory.ParsePriority(priority)
	m.Tags = decodeStrings(tags)
	m.CreatedAt = fromUnix(created)
	m.UpdatedAt = fromUnix(updated)
	m.LastAccessedAt = fromNullUnix(accessed)
	if expires.Valid {
		exp := fromUnix(expires.Int64)
		m.ExpiresAt = &exp
	}
	m.Clamp()
	return &m, nil
}

func decodeStrings(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func memoryForIndex(subject, content string, tags []string) *memory.SemanticMemory {
	return &memory.SemanticMemory{Subject: subject, Content: content, Tags: tags}
}
