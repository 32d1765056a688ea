package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/papercomputeco/mnemo/pkg/storage"
)

// GetEmbedding returns the cached embedding for hash, or nil.
func (s *Store) GetEmbedding(ctx context.Context, hash string) (*storage.EmbeddingEntry, error) {
	if !s.acquire() {
		return nil, nil
	}
	defer s.release()

	var (
		e       storage.EmbeddingEntry
		blob    []byte
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT hash, model, dimension, vector, created_at FROM embedding_cache WHERE hash = ?`,
		hash,
	).Scan(&e.Hash, &e.Model, &e.Dimension, &blob, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get embedding %s: %w", hash, err)
	}

	e.Vector, err = deserializeFloat32(blob)
	if err != nil {
		return nil, fmt.Errorf("decode embedding %s: %w", hash, err)
	}
	e.CreatedAt = fromUnix(created)
	return &e, nil
}

// PutEmbedding stores an embedding. An existing entry for the hash is
// replaced.
func (s *Store) PutEmbedding(ctx context.Context, e *storage.EmbeddingEntry) error {
	if e == nil || e.Hash == "" || len(e.Vector) == 0 {
		return nil
	}
	if !s.acquire() {
		return nil
	}
	defer s.release()

	dim := e.Dimension
	if dim == 0 {
		dim = len(e.Vector)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO embedding_cache (hash, model, dimension, vector, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.Hash, e.Model, dim, serializeFloat32(e.Vector), time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put embedding %s: %w", e.Hash, err)
	}
	return nil
}

// serializeFloat32 packs a vector as little-endian float32s.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
