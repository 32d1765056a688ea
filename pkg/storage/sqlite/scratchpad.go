package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

// GetScratchpad returns the user's scratchpad, or nil when none was saved.
func (s *Store) GetScratchpad(ctx context.Context, userID string) (*memory.Scratchpad, error) {
	if userID == "" {
		userID = memory.DefaultUserID
	}
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	var (
		pad                 memory.Scratchpad
		projects, questions string
		steps               string
		updated             int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, content, active_projects, current_focus, open_questions, next_steps, updated_at
		FROM scratchpad WHERE user_id = ?`,
		userID,
	).Scan(&pad.UserID, &pad.Content, &projects, &pad.CurrentFocus, &questions, &steps, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scratchpad %s: %w", userID, err)
	}

	pad.ActiveProjects = decodeStrings(projects)
	pad.OpenQuestions = decodeStrings(questions)
	pad.NextSteps = decodeStrings(steps)
	pad.UpdatedAt = fromUnix(updated)
	return &pad, nil
}

// SaveScratchpad overwrites the user's scratchpad.
func (s *Store) SaveScratchpad(ctx context.Context, pad *memory.Scratchpad) error {
	if pad == nil {
		return nil
	}
	if !s.acquire() {
		return nil
	}
	defer s.release()

	userID := pad.UserID
	if userID == "" {
		userID = memory.DefaultUserID
	}
	updated := pad.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scratchpad
			(user_id, content, active_projects, current_focus, open_questions, next_steps, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, pad.Content, encodeStrings(pad.ActiveProjects), pad.CurrentFocus,
		encodeStrings(pad.OpenQuestions), encodeStrings(pad.NextSteps), updated.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save scratchpad %s: %w", userID, err)
	}
	return nil
}
