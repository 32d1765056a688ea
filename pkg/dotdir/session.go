package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	sessionFile = "session.json"
)

// SessionState is the session the CLI is recording. Each mnemo invocation is
// a separate process, so the active session id lives on disk between
// "mnemo session start" and "mnemo session end".
type SessionState struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`

	// Cited are memories looked up with "mnemo search" during the session,
	// scored for usefulness when the session ends.
	Cited []CitedMemory `json:"cited,omitempty"`
}

// CitedMemory is a memory looked up during a session.
type CitedMemory struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Cite adds memories to the state, skipping ids already present.
func (s *SessionState) Cite(cited ...CitedMemory) {
	seen := make(map[string]bool, len(s.Cited))
	for _, c := range s.Cited {
		seen[c.ID] = true
	}
	for _, c := range cited {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		s.Cited = append(s.Cited, c)
	}
}

// LoadSessionState loads the session state from a target .mnemo/session.json.
// Returns nil, nil if no session is active.
// If overrideDir is non-empty, it is used instead of the default ~/.mnemo/ location.
func (m *Manager) LoadSessionState(overrideDir string) (*SessionState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, sessionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	state := &SessionState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}
	if state.SessionID == "" {
		return nil, errors.New("session state has no session id")
	}

	return state, nil
}

// SaveSessionState persists the session state to a target .mnemo/session.json.
func (m *Manager) SaveSessionState(state *SessionState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil session state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, sessionFile), data, 0o600); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}

	return nil
}

// ClearSessionState removes the session state file.
// Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearSessionState(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(dir, sessionFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing session state: %w", err)
	}

	return nil
}
