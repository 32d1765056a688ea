// Package sqlite provides the SQLite-backed persistent store of the memory
// engine.
//
// The store keeps one open connection in WAL mode. Every write is a single
// statement or a single transaction. Full-text search uses an FTS5
// external-content table kept in sync by triggers; when the sqlite3 driver
// was built without FTS5 (build tag sqlite_fts5) the store logs a warning
// and answers keyword queries with LIKE token matching instead.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/memory"
	"github.com/papercomputeco/mnemo/pkg/storage"
)

var _ storage.Driver = (*Store)(nil)

// Store implements storage.Driver on a single SQLite database file.
type Store struct {
	db        *sql.DB
	path      string
	logger    *slog.Logger
	segmenter Segmenter

	// fts is false when the FTS5 module is unavailable.
	fts bool

	// mu guards closed. Operations hold the read lock for their whole
	// duration so Close waits for in-flight calls.
	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSegmenter sets the word segmenter applied to indexed text and
// queries. Defaults to CJKSegmenter.
func WithSegmenter(seg Segmenter) Option {
	return func(s *Store) {
		if seg != nil {
			s.segmenter = seg
		}
	}
}

// Open creates or opens the database at dbPath, creating parent directories,
// initializing the schema and applying migrations. The dbPath can be a file
// path or ":memory:".
func Open(dbPath string, opts ...Option) (*Store, error) {
	s := &Store{
		path:      dbPath,
		logger:    logger.Nop(),
		segmenter: CJKSegmenter{},
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s.fts = s.initFTS()

	s.logger.Debug("sqlite store opened",
		"path", dbPath,
		"fts5", s.fts,
	)
	return s, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// FTSEnabled reports whether full-text search runs on FTS5.
func (s *Store) FTSEnabled() bool {
	return s.fts
}

// Segment applies the store's word segmenter to text.
func (s *Store) Segment(text string) string {
	return s.segmenter.Segment(text)
}

// acquire takes the read side of the close lock. It returns false, without
// holding the lock, once the store is closed.
func (s *Store) acquire() bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	return true
}

func (s *Store) release() {
	s.mu.RUnlock()
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		priority TEXT NOT NULL,
		content TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		predicate TEXT NOT NULL DEFAULT '',
		importance_score REAL NOT NULL DEFAULT 0.5,
		confidence REAL NOT NULL DEFAULT 0.5,
		decay_rate REAL NOT NULL DEFAULT 0.1,
		access_count INTEGER NOT NULL DEFAULT 0,
		tags TEXT NOT NULL DEFAULT '[]',
		source TEXT NOT NULL DEFAULT '',
		source_episode_id TEXT NOT NULL DEFAULT '',
		superseded_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		last_accessed_at INTEGER,
		expires_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_subject ON memories(subject)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_expires_at ON memories(expires_at)`,

	`CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		goal TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT 'completed',
		action_nodes TEXT NOT NULL DEFAULT '[]',
		entities TEXT NOT NULL DEFAULT '[]',
		tools_used TEXT NOT NULL DEFAULT '[]',
		linked_memory_ids TEXT NOT NULL DEFAULT '[]',
		started_at INTEGER,
		ended_at INTEGER,
		importance_score REAL NOT NULL DEFAULT 0.5,
		access_count INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT 'session_end'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_session ON episodes(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_episodes_ended_at ON episodes(ended_at)`,

	`CREATE TABLE IF NOT EXISTS scratchpad (
		user_id TEXT PRIMARY KEY,
		content TEXT NOT NULL DEFAULT '',
		active_projects TEXT NOT NULL DEFAULT '[]',
		current_focus TEXT NOT NULL DEFAULT '',
		open_questions TEXT NOT NULL DEFAULT '[]',
		next_steps TEXT NOT NULL DEFAULT '[]',
		updated_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		turn_index INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		tool_calls TEXT NOT NULL DEFAULT '[]',
		tool_results TEXT NOT NULL DEFAULT '[]',
		episode_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_turns_session ON conversation_turns(session_id, turn_index)`,

	`CREATE TABLE IF NOT EXISTS extraction_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		turn_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		tool_calls TEXT NOT NULL DEFAULT '[]',
		tool_results TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_status ON extraction_queue(status, id)`,

	`CREATE TABLE IF NOT EXISTS embedding_cache (
		hash TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		episode_id TEXT NOT NULL DEFAULT '',
		filename TEXT NOT NULL,
		original_filename TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		file_size INTEGER NOT NULL DEFAULT 0,
		local_path TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		direction TEXT NOT NULL DEFAULT 'inbound',
		description TEXT NOT NULL DEFAULT '',
		transcription TEXT NOT NULL DEFAULT '',
		extracted_text TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		linked_memory_ids TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_session ON attachments(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_created_at ON attachments(created_at)`,
}

func (s *Store) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// runMigrations applies incremental schema changes that were added after the
// initial schema. Each migration is idempotent so it is safe to call on every
// open.
func (s *Store) runMigrations() error {
	hasSearchText, err := columnExists(s.db, "memories", "search_text")
	if err != nil {
		return fmt.Errorf("check search_text column: %w", err)
	}
	if hasSearchText {
		return nil
	}

	if _, err := s.db.Exec(`ALTER TABLE memories ADD COLUMN search_text TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add search_text column: %w", err)
	}

	// Backfill rows written before the column existed.
	return s.resegment(context.Background())
}

// initFTS creates the FTS5 table and its sync triggers. It returns false when
// the FTS5 module is not compiled into the driver.
func (s *Store) initFTS() bool {
	_, err := s.db.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		search_text,
		content='memories',
		content_rowid='rowid',
		tokenize='unicode61'
	)`)
	if err != nil {
		s.logger.Warn("fts5 unavailable, falling back to LIKE matching", "error", err)
		return false
	}

	var existed bool
	if err := s.db.QueryRow(
		`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'trigger' AND name = 'memories_fts_ai'`,
	).Scan(&existed); err != nil {
		s.logger.Warn("could not inspect fts triggers", "error", err)
		return false
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS memories_fts_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, search_text) VALUES (new.rowid, new.search_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_fts_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, search_text) VALUES ('delete', old.rowid, old.search_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS memories_fts_au AFTER UPDATE OF search_text ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, search_text) VALUES ('delete', old.rowid, old.search_text);
			INSERT INTO memories_fts(rowid, search_text) VALUES (new.rowid, new.search_text);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.db.Exec(t); err != nil {
			s.logger.Warn("could not create fts trigger", "error", err)
			return false
		}
	}

	// A database created before the index existed needs a full build.
	if !existed {
		if _, err := s.db.Exec(`INSERT INTO memories_fts(memories_fts) VALUES ('rebuild')`); err != nil {
			s.logger.Warn("could not build fts index", "error", err)
			return false
		}
	}
	return true
}

// columnExists checks whether a column exists on a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Stats counts rows across the store's tables.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{
		ByType:     map[memory.MemoryType]int{},
		ByPriority: map[memory.Priority]int{},
		FTSEnabled: s.fts,
	}
	if !s.acquire() {
		return stats, nil
	}
	defer s.release()

	rows, err := s.db.QueryContext(ctx, `SELECT type, priority, COUNT(*) FROM memories GROUP BY type, priority`)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	for rows.Next() {
		var (
			t, p string
			n    int
		)
		if err := rows.Scan(&t, &p, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan memory counts: %w", err)
		}
		stats.Memories += n
		stats.ByType[memory.MemoryType(t)] += n
		stats.ByPriority[memory.Priority(p)] += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&stats.Episodes, `SELECT COUNT(*) FROM episodes`},
		{&stats.Attachments, `SELECT COUNT(*) FROM attachments`},
		{&stats.Turns, `SELECT COUNT(*) FROM conversation_turns`},
		{&stats.PendingExtractions, `SELECT COUNT(*) FROM extraction_queue WHERE status = 'pending'`},
		{&stats.CachedEmbeddings, `SELECT COUNT(*) FROM embedding_cache`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	return stats, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nullUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func fromNullUnix(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return fromUnix(n.Int64)
}
