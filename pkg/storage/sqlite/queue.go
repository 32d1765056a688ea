package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// EnqueueExtraction adds a pending extraction item and returns its id.
func (s *Store) EnqueueExtraction(ctx context.Context, item *memory.ExtractionItem) (int64, error) {
	if item == nil {
		return 0, nil
	}
	if !s.acquire() {
		return 0, nil
	}
	defer s.release()

	calls, results, err := encodeToolTraffic(item.ToolCalls, item.ToolResults)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC().UnixNano()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO extraction_queue
			(session_id, turn_index, content, tool_calls, tool_results, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, ?)`,
		item.SessionID, item.TurnIndex, item.Content, calls, results, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue extraction: %w", err)
	}
	return res.LastInsertId()
}

// DequeueExtraction claims up to batchSize pending items, oldest first. The
// select and the flip to processing happen in one transaction, so an item is
// delivered to exactly one caller. An empty queue yields an empty slice.
func (s *Store) DequeueExtraction(ctx context.Context, batchSize int) ([]*memory.ExtractionItem, error) {
	items := []*memory.ExtractionItem{}
	if batchSize <= 0 {
		return items, nil
	}
	if !s.acquire() {
		return items, nil
	}
	defer s.release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return items, fmt.Errorf("begin dequeue: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, session_id, turn_index, content, tool_calls, tool_results, attempts, created_at
		FROM extraction_queue
		WHERE status = 'pending'
		ORDER BY id
		LIMIT ?`,
		batchSize,
	)
	if err != nil {
		return items, fmt.Errorf("select pending extractions: %w", err)
	}
	for rows.Next() {
		var (
			it             memory.ExtractionItem
			calls, results string
			created        int64
			turn           memory.ConversationTurn
		)
		if err := rows.Scan(&it.ID, &it.SessionID, &it.TurnIndex, &it.Content, &calls, &results, &it.Attempts, &created); err != nil {
			rows.Close()
			return []*memory.ExtractionItem{}, fmt.Errorf("scan extraction: %w", err)
		}
		if err := decodeToolTraffic(calls, results, &turn); err != nil {
			rows.Close()
			return []*memory.ExtractionItem{}, err
		}
		it.ToolCalls = turn.ToolCalls
		it.ToolResults = turn.ToolResults
		it.CreatedAt = fromUnix(created)
		it.Status = memory.QueueProcessing
		it.Attempts++
		items = append(items, &it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return []*memory.ExtractionItem{}, err
	}
	if len(items) == 0 {
		return items, nil
	}

	now := time.Now().UTC().UnixNano()
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, `
			UPDATE extraction_queue
			SET status = 'processing', attempts = attempts + 1, updated_at = ?
			WHERE id = ? AND status = 'pending'`,
			now, it.ID,
		); err != nil {
			return []*memory.ExtractionItem{}, fmt.Errorf("claim extraction %d: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return []*memory.ExtractionItem{}, fmt.Errorf("commit dequeue: %w", err)
	}
	return items, nil
}

// CompleteExtraction marks a claimed item done or failed. Items that are not
// in processing state are left alone, which makes completion terminal.
func (s *Store) CompleteExtraction(ctx context.Context, id int64, success bool) error {
	if !s.acquire() {
		return nil
	}
	defer s.release()

	status := memory.QueueDone
	if !success {
		status = memory.QueueFailed
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE extraction_queue SET status = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`,
		string(status), time.Now().UTC().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("complete extraction %d: %w", id, err)
	}
	return nil
}
