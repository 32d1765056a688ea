package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

const episodeColumns = `id, session_id, summary, goal, outcome, action_nodes,
	entities, tools_used, linked_memory_ids, started_at, ended_at,
	importance_score, access_count, source`

// SaveEpisode inserts or replaces an episode.
func (s *Store) SaveEpisode(ctx context.Context, e *memory.Episode) error {
	if e == nil {
		return nil
	}
	if !s.acquire() {
		return nil
	}
	defer s.release()

	nodes, err := json.Marshal(e.ActionNodes)
	if err != nil {
		return fmt.Errorf("marshal action nodes: %w", err)
	}
	if e.ActionNodes == nil {
		nodes = []byte("[]")
	}

	outcome := e.Outcome
	if outcome == "" {
		outcome = memory.DefaultOutcome
	}
	source := e.Source
	if source == "" {
		source = memory.DefaultEpisodeSource
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO episodes (`+episodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Summary, e.Goal, outcome, string(nodes),
		encodeStrings(e.Entities), encodeStrings(e.ToolsUsed), encodeStrings(e.LinkedMemoryIDs),
		nullUnix(e.StartedAt), nullUnix(e.EndedAt),
		memory.Clamp01(e.ImportanceScore, memory.DefaultImportance), e.AccessCount, source,
	)
	if err != nil {
		return fmt.Errorf("save episode %s: %w", e.ID, err)
	}
	return nil
}

// GetEpisode returns the episode with the given id.
func (s *Store) GetEpisode(ctx context.Context, id string) (*memory.Episode, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	e, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound{Kind: "episode", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get episode %s: %w", id, err)
	}
	return e, nil
}

// UpdateEpisodeLinks merges memoryIDs into the episode's linked ids. This is
// the only mutation an episode accepts after it is written.
func (s *Store) UpdateEpisodeLinks(ctx context.Context, id string, memoryIDs []string) error {
	if len(memoryIDs) == 0 {
		return nil
	}
	if !s.acquire() {
		return nil
	}
	defer s.release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link update: %w", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx, `SELECT linked_memory_ids FROM episodes WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound{Kind: "episode", ID: id}
	}
	if err != nil {
		return fmt.Errorf("load episode links %s: %w", id, err)
	}

	linked := decodeStrings(raw)
	seen := make(map[string]struct{}, len(linked))
	for _, l := range linked {
		seen[l] = struct{}{}
	}
	for _, mid := range memoryIDs {
		if _, ok := seen[mid]; ok || mid == "" {
			continue
		}
		seen[mid] = struct{}{}
		linked = append(linked, mid)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE episodes SET linked_memory_ids = ? WHERE id = ?`,
		encodeStrings(linked), id,
	); err != nil {
		return fmt.Errorf("update episode links %s: %w", id, err)
	}
	return tx.Commit()
}

// SearchEpisodes returns episodes whose entities, summary or goal mention
// entity, newest first.
func (s *Store) SearchEpisodes(ctx context.Context, entity string, limit int) ([]*memory.Episode, error) {
	if entity == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	pattern := "%" + escapeLike(entity) + "%"
	return s.queryEpisodes(ctx, `
		SELECT `+episodeColumns+` FROM episodes
		WHERE entities LIKE ? ESCAPE '\' OR summary LIKE ? ESCAPE '\' OR goal LIKE ? ESCAPE '\'
		ORDER BY ended_at DESC
		LIMIT ?`,
		pattern, pattern, pattern, limit,
	)
}

// RecentEpisodes returns episodes that ended within the last days days,
// newest first.
func (s *Store) RecentEpisodes(ctx context.Context, days, limit int) ([]*memory.Episode, error) {
	if limit <= 0 {
		limit = 5
	}
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	cutoff := time.Now().UTC().AddDate(0, 0, -days).UnixNano()
	return s.queryEpisodes(ctx, `
		SELECT `+episodeColumns+` FROM episodes
		WHERE ended_at >= ?
		ORDER BY ended_at DESC
		LIMIT ?`,
		cutoff, limit,
	)
}

func (s *Store) queryEpisodes(ctx context.Context, query string, args ...any) ([]*memory.Episode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var result []*memory.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func scanEpisode(row scanner) (*memory.Episode, error) {
	var (
		e                      memory.Episode
		nodes, entities, tools string
		linked                 string
		startedAt, endedAt     sql.NullInt64
	)
	if err := row.Scan(
		&e.ID, &e.SessionID, &e.Summary, &e.Goal, &e.Outcome, &nodes,
		&entities, &tools, &linked, &startedAt, &endedAt,
		&e.ImportanceScore, &e.AccessCount, &e.Source,
	); err != nil {
		return nil, err
	}

	e.ActionNodes = []memory.ActionNode{}
	if nodes != "" {
		if err := json.Unmarshal([]byte(nodes), &e.ActionNodes); err != nil {
			return nil, fmt.Errorf("decode action nodes: %w", err)
		}
	}
	e.Entities = decodeStrings(entities)
	e.ToolsUsed = decodeStrings(tools)
	e.LinkedMemoryIDs = decodeStrings(linked)
	e.StartedAt = fromNullUnix(startedAt)
	e.EndedAt = fromNullUnix(endedAt)
	return &e, nil
}
