package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const attachmentColumns = `id, session_id, episode_id, filename, original_filename,
	mime_type, file_size, local_path, url, direction, description,
	transcription, extracted_text, tags, linked_memory_ids, created_at`

// SaveAttachment inserts or replaces an attachment.
func (s *Store) SaveAttachment(ctx context.Context, a *memory.Attachment) error {
	if a == nil {
		return nil
	}
	if !s.acquire() {
		return nil
	}
	defer s.release()

	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	original := a.OriginalFilename
	if original == "" {
		original = a.Filename
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO attachments (`+attachmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, a.EpisodeID, a.Filename, original,
		a.MimeType, a.FileSize, a.LocalPath, a.URL, string(memory.ParseDirection(string(a.Direction))), a.Description,
		a.Transcription, a.ExtractedText, encodeStrings(a.Tags), encodeStrings(a.LinkedMemoryIDs), created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save attachment %s: %w", a.ID, err)
	}
	return nil
}

// GetAttachment returns the attachment with the given id.
func (s *Store) GetAttachment(ctx context.Context, id string) (*memory.Attachment, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	row := s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`, id)
	a, err := scanAttachment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound{Kind: "attachment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment %s: %w", id, err)
	}
	return a, nil
}

// DeleteAttachment removes an attachment record. The file it points to is
// not touched.
func (s *Store) DeleteAttachment(ctx context.Context, id string) (bool, error) {
	if !s.acquire() {
		return false, nil
	}
	defer s.release()

	res, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete attachment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete attachment %s: %w", id, err)
	}
	return n > 0, nil
}

// ListAttachments returns every attachment, newest first.
func (s *Store) ListAttachments(ctx context.Context) ([]*memory.Attachment, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	return s.queryAttachments(ctx, `SELECT `+attachmentColumns+` FROM attachments ORDER BY created_at DESC`)
}

// SearchAttachments filters attachments by mime prefix, direction and session
// in SQL, then matches the query words against each attachment's searchable
// text. Results are ordered by the number of matched words, then recency.
func (s *Store) SearchAttachments(ctx context.Context, q storage.AttachmentQuery) ([]*memory.Attachment, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	var (
		where []string
		args  []any
	)
	if q.MimePrefix != "" {
		where = append(where, `mime_type LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(q.MimePrefix)+"%")
	}
	if q.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, string(memory.ParseDirection(string(q.Direction))))
	}
	if q.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, q.SessionID)
	}

	query := `SELECT ` + attachmentColumns + ` FROM attachments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	all, err := s.queryAttachments(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	words := attachmentWords(q.Text)
	if len(words) == 0 {
		if len(all) > limit {
			all = all[:limit]
		}
		return all, nil
	}

	type scored struct {
		a     *memory.Attachment
		score int
	}
	var matches []scored
	for _, a := range all {
		text := strings.ToLower(a.SearchableText())
		n := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				n++
			}
		}
		if n > 0 {
			matches = append(matches, scored{a: a, score: n})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	result := make([]*memory.Attachment, 0, min(len(matches), limit))
	for _, m := range matches {
		if len(result) == limit {
			break
		}
		result = append(result, m.a)
	}
	return result, nil
}

// attachmentWords lowercases and segments text, keeping words of at least
// two bytes plus any single CJK rune.
func attachmentWords(text string) []string {
	fields := SanitizeQuery(strings.ToLower(CJKSegmenter{}.Segment(text)))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			words = append(words, f)
		}
	}
	return words
}

func (s *Store) queryAttachments(ctx context.Context, query string, args ...any) ([]*memory.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	var result []*memory.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func scanAttachment(row scanner) (*memory.Attachment, error) {
	var (
		a            memory.Attachment
		direction    string
		tags, linked string
		created      int64
	)
	if err := row.Scan(
		&a.ID, &a.SessionID, &a.EpisodeID, &a.Filename, &a.OriginalFilename,
		&a.MimeType, &a.FileSize, &a.LocalPath, &a.URL, &direction, &a.Description,
		&a.Transcription, &a.ExtractedText, &tags, &linked, &created,
	); err != nil {
		return nil, err
	}
	a.Direction = memory.ParseDirection(direction)
	a.Tags = decodeStrings(tags)
	a.LinkedMemoryIDs = decodeStrings(linked)
	a.CreatedAt = fromUnix(created)
	return &a, nil
}
