package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

// SaveTurn appends a conversation turn at the given index of a session.
func (s *Store) SaveTurn(ctx context.Context, sessionID string, index int, turn memory.ConversationTurn) error {
	if !s.acquire() {
		return nil
	}
	defer s.release()

	calls, results, err := encodeToolTraffic(turn.ToolCalls, turn.ToolResults)
	if err != nil {
		return err
	}
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_turns
			(session_id, turn_index, role, content, tool_calls, tool_results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, index, turn.Role, turn.Content, calls, results, ts.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save turn %s/%d: %w", sessionID, index, err)
	}
	return nil
}

// ListTurns returns a session's turns in order.
func (s *Store) ListTurns(ctx context.Context, sessionID string) ([]storage.TurnRecord, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, turn_index, episode_id, role, content, tool_calls, tool_results, created_at
		FROM conversation_turns
		WHERE session_id = ?
		ORDER BY turn_index, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns %s: %w", sessionID, err)
	}
	defer rows.Close()

	var result []storage.TurnRecord
	for rows.Next() {
		var (
			r              storage.TurnRecord
			calls, results string
			created        int64
		)
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.TurnIndex, &r.EpisodeID,
			&r.Turn.Role, &r.Turn.Content, &calls, &results, &created,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := decodeToolTraffic(calls, results, &r.Turn); err != nil {
			return nil, err
		}
		r.Turn.Timestamp = fromUnix(created)
		result = append(result, r)
	}
	return result, rows.Err()
}

// MaxTurnIndex returns the highest stored turn index of a session, or -1.
func (s *Store) MaxTurnIndex(ctx context.Context, sessionID string) (int, error) {
	if !s.acquire() {
		return -1, nil
	}
	defer s.release()

	var idx int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn_index), -1) FROM conversation_turns WHERE session_id = ?`,
		sessionID,
	).Scan(&idx)
	if err != nil {
		return -1, fmt.Errorf("max turn index %s: %w", sessionID, err)
	}
	return idx, nil
}

// LinkTurnsToEpisode tags every unlinked turn of a session with episodeID.
func (s *Store) LinkTurnsToEpisode(ctx context.Context, sessionID, episodeID string) (int, error) {
	if !s.acquire() {
		return 0, nil
	}
	defer s.release()

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversation_turns SET episode_id = ? WHERE session_id = ? AND episode_id = ''`,
		episodeID, sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("link turns %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("link turns %s: %w", sessionID, err)
	}
	return int(n), nil
}

func encodeToolTraffic(calls []memory.ToolCall, results []memory.ToolResult) (string, string, error) {
	if calls == nil {
		calls = []memory.ToolCall{}
	}
	if results == nil {
		results = []memory.ToolResult{}
	}
	c, err := json.Marshal(calls)
	if err != nil {
		return "", "", fmt.Errorf("marshal tool calls: %w", err)
	}
	r, err := json.Marshal(results)
	if err != nil {
		return "", "", fmt.Errorf("marshal tool results: %w", err)
	}
	return string(c), string(r), nil
}

func decodeToolTraffic(calls, results string, turn *memory.ConversationTurn) error {
	if calls != "" && calls != "[]" {
		if err := json.Unmarshal([]byte(calls), &turn.ToolCalls); err != nil {
			return fmt.Errorf("decode tool calls: %w", err)
		}
	}
	if results != "" && results != "[]" {
		if err := json.Unmarshal([]byte(results), &turn.ToolResults); err != nil {
			return fmt.Errorf("decode tool results: %w", err)
		}
	}
	return nil
}
