package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/worker"
)

// minTopicTurns is the fewest buffered turns worth a topic-change
// extraction.
const minTopicTurns = 3

// StartSession begins recording sessionID. Turn indexes continue after any
// turns the store already holds for the session, so a resumed session
// appends instead of overwriting. Stored turns not yet linked to an episode
// are buffered again, so a session recorded across processes ends with all
// of its turns.
func (m *Manager) StartSession(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is required")
	}
	last, err := m.store.MaxTurnIndex(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}

	var pending []memory.ConversationTurn
	if last >= 0 {
		records, err := m.store.ListTurns(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("resume session %s: %w", sessionID, err)
		}
		for _, r := range records {
			if r.EpisodeID == "" {
				pending = append(pending, r.Turn)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessionID = sessionID
	m.turnOffset = last + 1 - len(pending)
	m.turns = pending
	m.recent = nil
	for _, t := range pending {
		m.recent = append(m.recent, memory.Message{Role: t.Role, Content: t.Content})
	}
	if len(m.recent) > maxRecentMessages {
		m.recent = m.recent[len(m.recent)-maxRecentMessages:]
	}
	m.cited = nil

	if m.turnOffset > 0 {
		m.logger.Info("resuming session", "session_id", sessionID, "turn_offset", m.turnOffset)
	} else {
		m.logger.Debug("started session", "session_id", sessionID)
	}
	return nil
}

// SessionID returns the active session, or "".
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// RecordTurn appends turn to the active session. Attachments are recorded
// first; one without a direction takes it from the turn role, inbound for
// the user and outbound otherwise. Only the id of a caller's attachment is
// filled in. The turn is persisted, and a turn long enough to carry
// information is queued for background extraction.
func (m *Manager) RecordTurn(ctx context.Context, turn memory.ConversationTurn, attachments ...*memory.Attachment) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = m.now().UTC()
	}

	var errs []error
	for _, a := range attachments {
		if a == nil {
			continue
		}
		att := *a
		if att.Direction == "" {
			att.Direction = memory.DirectionForRole(turn.Role)
		}
		id, err := m.RecordAttachment(ctx, &att)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		a.ID = id
	}

	m.mu.Lock()
	m.turns = append(m.turns, turn)
	m.recent = append(m.recent, memory.Message{Role: turn.Role, Content: turn.Content})
	if len(m.recent) > maxRecentMessages {
		m.recent = append([]memory.Message(nil), m.recent[len(m.recent)-maxRecentMessages:]...)
	}
	sessionID := m.sessionID
	index := m.turnOffset + len(m.turns) - 1
	m.mu.Unlock()

	if sessionID == "" {
		return errors.Join(errs...)
	}

	if err := m.store.SaveTurn(ctx, sessionID, index, turn); err != nil {
		errs = append(errs, fmt.Errorf("save turn: %w", err))
	}

	if utf8.RuneCountInString(turn.Content) >= enqueueMinLength || len(turn.ToolCalls) > 0 {
		m.enqueue(ctx, sessionID, index, turn)
	}
	return errors.Join(errs...)
}

func (m *Manager) enqueue(ctx context.Context, sessionID string, index int, turn memory.ConversationTurn) {
	id, err := m.store.EnqueueExtraction(ctx, &memory.ExtractionItem{
		SessionID:   sessionID,
		TurnIndex:   index,
		Content:     turn.Content,
		ToolCalls:   turn.ToolCalls,
		ToolResults: turn.ToolResults,
	})
	if err != nil {
		m.logger.Warn("enqueue extraction failed", "session_id", sessionID, "turn_index", index, "error", err)
		return
	}
	if m.pool != nil {
		m.pool.Enqueue(worker.Job{SessionID: sessionID, TurnIndex: index, QueueID: id})
	}
}

// RecentMessages returns a copy of the recent conversation context.
func (m *Manager) RecentMessages() []memory.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]memory.Message(nil), m.recent...)
}

// RecordCitedMemories remembers memories the assistant looked up during the
// session so the end-of-session extraction can judge whether they helped.
// Repeated ids are ignored.
func (m *Manager) RecordCitedMemories(cited ...extractor.CitedMemory) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(m.cited))
	for _, c := range m.cited {
		seen[c.ID] = true
	}
	for _, c := range cited {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		m.cited = append(m.cited, c)
	}
}

// applyCitationScores bumps the access count of memories judged useful.
func (m *Manager) applyCitationScores(ctx context.Context, scores []extractor.CitationScore) int {
	var useful []string
	for _, s := range scores {
		if s.Useful {
			useful = append(useful, s.MemoryID)
		}
	}
	if len(useful) == 0 {
		return 0
	}
	if err := m.store.BumpAccess(ctx, useful); err != nil {
		m.logger.Warn("applying citation scores failed", "error", err)
		return 0
	}
	for _, id := range useful {
		m.refreshCached(ctx, id)
	}
	return len(useful)
}

// SessionReport summarizes EndSession.
type SessionReport struct {
	SessionID      string `json:"session_id"`
	EpisodeID      string `json:"episode_id,omitempty"`
	Turns          int    `json:"turns"`
	MemoriesSaved  int    `json:"memories_saved"`
	UsefulCitation int    `json:"useful_citations"`
	TurnsLinked    int    `json:"turns_linked"`
	Expired        int    `json:"expired_removed"`
}

// EndSession finalizes the active session: it saves an episode, extracts
// profile memories (scoring cited memories in the same pass) and task
// experience, links the episode to the memories and turns it produced,
// folds the episode into the scratchpad and removes expired memories.
// Individual failures are logged and returned joined; the session is always
// closed.
func (m *Manager) EndSession(ctx context.Context) (*SessionReport, error) {
	m.mu.Lock()
	sessionID := m.sessionID
	turns := m.turns
	cited := m.cited
	m.sessionID, m.turns, m.cited, m.turnOffset = "", nil, nil, 0
	m.mu.Unlock()

	if sessionID == "" {
		return nil, ErrNoSession
	}

	r := &SessionReport{SessionID: sessionID, Turns: len(turns)}
	var errs []error
	fail := func(step string, err error) {
		m.logger.Warn("session finalization step failed", "session_id", sessionID, "step", step, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
	}

	episode := m.extractor.GenerateEpisode(ctx, turns, sessionID, memory.DefaultEpisodeSource)
	if episode != nil {
		if err := m.store.SaveEpisode(ctx, episode); err != nil {
			fail("save episode", err)
			episode = nil
		} else {
			r.EpisodeID = episode.ID
		}
	}

	var saved []string
	items, scores := m.extractor.ExtractFromConversation(ctx, turns, cited)
	r.UsefulCitation = m.applyCitationScores(ctx, scores)
	items = append(items, m.extractor.ExtractExperience(ctx, turns)...)
	for _, it := range items {
		id, err := m.saveExtracted(ctx, it, r.EpisodeID)
		if err != nil {
			fail("save memory", err)
			continue
		}
		saved = append(saved, id)
	}
	r.MemoriesSaved = len(saved)

	if episode != nil {
		if len(saved) > 0 {
			if err := m.store.UpdateEpisodeLinks(ctx, episode.ID, saved); err != nil {
				fail("link memories", err)
			}
		}
		linked, err := m.store.LinkTurnsToEpisode(ctx, sessionID, episode.ID)
		if err != nil {
			fail("link turns", err)
		}
		r.TurnsLinked = linked

		if err := m.updateScratchpad(ctx, episode); err != nil {
			fail("scratchpad", err)
		}
	}

	expired, err := m.store.CleanupExpired(ctx)
	if err != nil {
		fail("cleanup expired", err)
	}
	r.Expired = expired
	if expired > 0 {
		if err := m.reloadCache(ctx); err != nil {
			fail("reload cache", err)
		}
	}

	m.logger.Info("ended session",
		"session_id", sessionID,
		"episode_id", r.EpisodeID,
		"memories_saved", r.MemoriesSaved,
		"turns_linked", r.TurnsLinked,
	)
	return r, errors.Join(errs...)
}

func (m *Manager) updateScratchpad(ctx context.Context, episode *memory.Episode) error {
	current, err := m.store.GetScratchpad(ctx, memory.DefaultUserID)
	if err != nil {
		return err
	}
	return m.store.SaveScratchpad(ctx, m.extractor.UpdateScratchpad(ctx, current, episode))
}

// Scratchpad returns the working memory, or nil when none exists yet.
func (m *Manager) Scratchpad(ctx context.Context) (*memory.Scratchpad, error) {
	return m.store.GetScratchpad(ctx, memory.DefaultUserID)
}

// ExtractOnTopicChange extracts memories from the turns buffered so far and
// clears the buffer, so the next topic starts fresh. Fewer than three turns
// are left alone.
func (m *Manager) ExtractOnTopicChange(ctx context.Context) (int, error) {
	m.mu.Lock()
	turns := append([]memory.ConversationTurn(nil), m.turns...)
	cited := m.cited
	if len(turns) < minTopicTurns {
		m.mu.Unlock()
		return 0, nil
	}
	m.cited = nil
	m.mu.Unlock()

	items, scores := m.extractor.ExtractFromConversation(ctx, turns, cited)
	m.applyCitationScores(ctx, scores)

	saved := 0
	var errs []error
	for _, it := range items {
		if _, err := m.saveExtracted(ctx, it, ""); err != nil {
			errs = append(errs, err)
			continue
		}
		saved++
	}

	m.mu.Lock()
	// Keep turns recorded while the extraction ran.
	if len(m.turns) >= len(turns) {
		m.turns = append([]memory.ConversationTurn(nil), m.turns[len(turns):]...)
	}
	m.turnOffset += len(turns)
	m.mu.Unlock()

	if saved > 0 {
		m.logger.Info("topic change extraction", "memories", saved, "turns", len(turns))
	}
	return saved, errors.Join(errs...)
}

// OnContextCompressing runs before the host drops old messages from its
// context window: preferences and rules are captured deterministically
// right away, and the first ten substantial messages are queued for full
// extraction.
func (m *Manager) OnContextCompressing(ctx context.Context, messages []memory.Message) (int, error) {
	facts := m.extractor.ExtractQuickFacts(messages)
	saved := 0
	var errs []error
	for _, f := range facts {
		if err := m.store.SaveMemory(ctx, f); err != nil {
			errs = append(errs, fmt.Errorf("save quick fact: %w", err))
			continue
		}
		m.cache.Put(f)
		saved++
	}
	if saved > 0 {
		m.logger.Info("captured quick facts before compression", "facts", saved)
	}

	sessionID := m.SessionID()
	if sessionID == "" {
		return saved, errors.Join(errs...)
	}
	for i, msg := range messages[:min(len(messages), maxRecentMessages)] {
		if utf8.RuneCountInString(msg.Content) > enqueueMinLength {
			m.enqueue(ctx, sessionID, i, memory.ConversationTurn{Role: msg.Role, Content: msg.Content})
		}
	}
	return saved, errors.Join(errs...)
}
