// Package sqlitevec stores memory embeddings in a local SQLite file through
// the sqlite-vec extension.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/mnemo/pkg/vector"
)

const defaultTopK = 10

// vec0 tables are keyed by integer rowid, so vec_documents maps memory ids
// to rowids and carries the text and metadata returned with matches.
const schema = `
CREATE TABLE IF NOT EXISTS vec_documents (
	rowid    INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id   TEXT NOT NULL UNIQUE,
	content  TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}'
);
CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d] distance_metric=cosine);
`

// SQLiteVecDriver implements vector.Driver. Scores are cosine similarities.
type SQLiteVecDriver struct {
	db         *sql.DB
	dimensions int
	logger     *slog.Logger
}

var _ vector.Driver = (*SQLiteVecDriver)(nil)

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the database file, or ":memory:".
	DBPath string

	// Dimensions must match the embedder's output.
	Dimensions uint
}

func NewSQLiteVecDriver(c Config, logger *slog.Logger) (*SQLiteVecDriver, error) {
	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	sqlite_vec.Auto()

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	var version string
	if err := db.QueryRow(`SELECT vec_version()`).Scan(&version); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf(schema, c.Dimensions)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vector tables: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", version,
	)

	return &SQLiteVecDriver{db: db, dimensions: int(c.Dimensions), logger: logger}, nil
}

// Add upserts docs in one transaction. Every embedding must have the
// configured dimensions.
func (d *SQLiteVecDriver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if err := d.upsert(ctx, tx, doc); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added documents to sqlite-vec", "count", len(docs))
	return nil
}

func (d *SQLiteVecDriver) upsert(ctx context.Context, tx *sql.Tx, doc vector.Document) error {
	if len(doc.Embedding) != d.dimensions {
		return fmt.Errorf("doc %s: embedding has %d dimensions, store expects %d: %w", doc.ID, len(doc.Embedding), d.dimensions, vector.ErrDimensions)
	}

	blob, err := sqlite_vec.SerializeFloat32(doc.Embedding)
	if err != nil {
		return fmt.Errorf("serializing embedding for doc %s: %w", doc.ID, err)
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for doc %s: %w", doc.ID, err)
	}

	var rowID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO vec_documents(doc_id, content, metadata) VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata
		RETURNING rowid
	`, doc.ID, doc.Content, string(meta)).Scan(&rowID)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.ID, err)
	}

	// vec0 has no UPDATE, so a changed embedding is replaced.
	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
		return fmt.Errorf("clearing embedding for doc %s: %w", doc.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`, rowID, blob); err != nil {
		return fmt.Errorf("inserting embedding for doc %s: %w", doc.ID, err)
	}
	return nil
}

// Query returns the topK nearest documents, most similar first. topK <= 0
// means 10.
func (d *SQLiteVecDriver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("serializing query embedding: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT d.doc_id, d.content, d.metadata, v.distance
		FROM vec_embeddings v
		JOIN vec_documents d ON d.rowid = v.rowid
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance
	`, blob, topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			r        vector.QueryResult
			meta     string
			distance float64
		)
		if err := rows.Scan(&r.ID, &r.Content, &meta, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		r.Metadata = decodeMetadata(meta)
		r.Score = float32(1 - distance)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec", "results", len(results))
	return results, nil
}

// Get returns the stored documents among ids, embeddings included. Unknown
// ids are skipped.
func (d *SQLiteVecDriver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT rowid, doc_id, content, metadata FROM vec_documents WHERE doc_id IN (?` +
		strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}

	var (
		docs   []vector.Document
		rowIDs []int64
	)
	for rows.Next() {
		var (
			doc   vector.Document
			rowID int64
			meta  string
		)
		if err := rows.Scan(&rowID, &doc.ID, &doc.Content, &meta); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.Metadata = decodeMetadata(meta)
		docs = append(docs, doc)
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	// The cursor above must be closed first: the pool has one connection.
	for i, rowID := range rowIDs {
		var blob []byte
		err := d.db.QueryRowContext(ctx, `SELECT embedding FROM vec_embeddings WHERE rowid = ?`, rowID).Scan(&blob)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading embedding for doc %s: %w", docs[i].ID, err)
		}
		docs[i].Embedding = decodeFloat32(blob)
	}
	return docs, nil
}

// Delete removes ids. Unknown ids are ignored.
func (d *SQLiteVecDriver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		var rowID int64
		err := tx.QueryRowContext(ctx, `DELETE FROM vec_documents WHERE doc_id = ? RETURNING rowid`, id).Scan(&rowID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return fmt.Errorf("deleting document %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
			return fmt.Errorf("deleting embedding for doc %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted documents from sqlite-vec", "count", len(ids))
	return nil
}

func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}

func decodeMetadata(raw string) map[string]string {
	meta := map[string]string{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	return meta
}

// decodeFloat32 reverses sqlite_vec.SerializeFloat32: little-endian float32s.
// Trailing bytes that do not form a whole float are dropped.
func decodeFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
