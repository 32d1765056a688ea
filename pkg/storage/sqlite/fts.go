package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

// SanitizeQuery removes characters that would break the FTS5 query grammar
// and splits what remains into tokens. Control characters, quotes and
// parentheses are dropped; the result never contains an empty token.
func SanitizeQuery(query string) []string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return ' '
		case r == '"', r == '\'', r == '(', r == ')', r == '`':
			return ' '
		}
		return r
	}, query)
	return strings.Fields(cleaned)
}

// matchExpression quotes every token and OR-joins them.
func matchExpression(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// SearchFTS runs a keyword query over live memories. The query is segmented
// and sanitized first; a query with no usable tokens returns nothing. Lower
// Rank is better. filterType is matched case-insensitively.
func (s *Store) SearchFTS(ctx context.Context, query string, limit int, filterType string) ([]storage.FTSHit, error) {
	tokens := SanitizeQuery(s.segmenter.Segment(query))
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	if !s.fts {
		return s.searchLike(ctx, tokens, limit, filterType)
	}

	args := []any{matchExpression(tokens)}
	query = `
		SELECT m.id, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.rowid = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.superseded_by = ''`
	if filterType != "" {
		query += ` AND lower(m.type) = lower(?)`
		args = append(args, filterType)
	}
	query += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var hits []storage.FTSHit
	for rows.Next() {
		var h storage.FTSHit
		if err := rows.Scan(&h.ID, &h.Rank); err != nil {
			return nil, fmt.Errorf("scan fts hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// searchLike matches any token with LIKE and ranks by the negated number of
// distinct tokens found, so more matches rank first as they would with bm25.
func (s *Store) searchLike(ctx context.Context, tokens []string, limit int, filterType string) ([]storage.FTSHit, error) {
	conds := make([]string, len(tokens))
	args := make([]any, 0, len(tokens)+1)
	for i, t := range tokens {
		conds[i] = `lower(search_text) LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(strings.ToLower(t))+"%")
	}

	query := `SELECT id, search_text FROM memories WHERE superseded_by = '' AND (` + strings.Join(conds, " OR ") + `)`
	if filterType != "" {
		query += ` AND lower(type) = lower(?)`
		args = append(args, filterType)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("like search: %w", err)
	}
	defer rows.Close()

	var hits []storage.FTSHit
	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("scan like hit: %w", err)
		}
		text = strings.ToLower(text)
		matched := 0
		for _, t := range tokens {
			if strings.Contains(text, strings.ToLower(t)) {
				matched++
			}
		}
		hits = append(hits, storage.FTSHit{ID: id, Rank: -float64(matched)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Rank < hits[j].Rank })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// RebuildFTSIndex recomputes the segmented search text of every memory and
// rebuilds the full-text index from it.
func (s *Store) RebuildFTSIndex(ctx context.Context) error {
	if !s.acquire() {
		return nil
	}
	defer s.release()

	if err := s.resegment(ctx); err != nil {
		return err
	}
	if !s.fts {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO memories_fts(memories_fts) VALUES ('rebuild')`); err != nil {
		return fmt.Errorf("rebuild fts index: %w", err)
	}
	s.logger.Info("rebuilt fts index")
	return nil
}

// resegment rewrites search_text for every row in one transaction.
func (s *Store) resegment(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resegment: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, subject, content, tags FROM memories`)
	if err != nil {
		return fmt.Errorf("load memories for resegment: %w", err)
	}

	type pending struct{ id, text string }
	var updates []pending
	for rows.Next() {
		var id, subject, content, tags string
		if err := rows.Scan(&id, &subject, &content, &tags); err != nil {
			rows.Close()
			return fmt.Errorf("scan memory for resegment: %w", err)
		}
		m := memoryForIndex(subject, content, decodeStrings(tags))
		updates = append(updates, pending{id: id, text: s.searchText(m)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, `UPDATE memories SET search_text = ? WHERE id = ?`, u.text, u.id); err != nil {
			return fmt.Errorf("resegment %s: %w", u.id, err)
		}
	}
	return tx.Commit()
}
