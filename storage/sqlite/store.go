// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	id INTEGER PRIMARY KEY,
	embedding BLOB
);

CREATE TABLE IF NOT EXISTS pair_similarities (
	id_low INTEGER NOT NULL,
	id_high INTEGER NOT NULL,
	similarity REAL NOT NULL,
	PRIMARY KEY (id_low, id_high),
	CHECK (id_low < id_high)
);

CREATE INDEX IF NOT EXISTS idx_pair_similarities_high ON pair_similarities(id_high);

CREATE TABLE IF NOT EXISTS run_summaries (
	run_id TEXT PRIMARY KEY,
	finished_at INTEGER NOT NULL,
	summary BLOB NOT NULL
);
`

// Store is a SQLite-backed embedding source, pair store, pair lookup and
// run repository.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

var (
	_ storage.EmbeddingSource = (*Store)(nil)
	_ storage.PairStore       = (*Store)(nil)
	_ storage.PairLookup      = (*Store)(nil)
	_ storage.RunRepository   = (*Store)(nil)
)

// Option is a functional option for configuring a Store.
type Option func(*Store) error

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// Open opens or creates the database at path and ensures the schema exists.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "sqlite-store")

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s.db = db
	s.logger.Debug("opened database", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	return nil
}

// AddEmbeddings inserts or replaces embeddings by ID.
// Every embedding is validated before anything is written.
func (s *Store) AddEmbeddings(ctx context.Context, embeddings ...*core.Embedding) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	for _, embedding := range embeddings {
		if err := core.ValidateEmbedding(embedding, 0); err != nil {
			return err
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO embeddings (id, embedding) VALUES (?, ?)
			 ON CONFLICT(id) DO UPDATE SET embedding = excluded.embedding`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, embedding := range embeddings {
			if _, err := stmt.ExecContext(ctx, int64(embedding.ID), encodeVector(embedding.Vector)); err != nil {
				return fmt.Errorf("embedding %d: %w", embedding.ID, err)
			}
		}
		return nil
	})
}

// ListEmbeddings returns up to limit embeddings in ascending ID order,
// starting at offset. Rows without a vector are skipped.
func (s *Store) ListEmbeddings(ctx context.Context, offset, limit int) ([]*core.Embedding, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: offset %d, limit %d", storage.ErrInvalidQuery, offset, limit)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM embeddings
		 WHERE embedding IS NOT NULL
		 ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*core.Embedding
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", id, err)
		}
		result = append(result, &core.Embedding{ID: core.ID(id), Vector: vec})
	}
	return result, rows.Err()
}

// CountEmbeddings returns the number of stored embeddings with a vector.
func (s *Store) CountEmbeddings(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM embeddings WHERE embedding IS NOT NULL`)
}

// ClearAll deletes every pair.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pair_similarities`)
	if err != nil {
		return fmt.Errorf("failed to clear pairs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug("cleared pairs", "count", n)
	}
	return nil
}

// UpsertPairs writes pairs in one transaction. Pairs whose key already exists
// are left untouched. Returns len(pairs) on success and 0 on error; nothing
// from a failed call is committed.
func (s *Store) UpsertPairs(ctx context.Context, pairs ...core.Pair) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if len(pairs) == 0 {
		return 0, nil
	}
	for _, p := range pairs {
		if err := core.ValidatePair(p); err != nil {
			return 0, err
		}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO pair_similarities (id_low, id_high, similarity) VALUES (?, ?, ?)
			 ON CONFLICT(id_low, id_high) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range pairs {
			if _, err := stmt.ExecContext(ctx, int64(p.Low), int64(p.High), p.Score); err != nil {
				return fmt.Errorf("pair (%d, %d): %w", p.Low, p.High, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(pairs), nil
}

// GetPair returns the stored pair for a and b in either order.
// Returns ErrNotFound if no such pair is stored.
func (s *Store) GetPair(ctx context.Context, a, b core.ID) (core.Pair, error) {
	if err := s.checkOpen(); err != nil {
		return core.Pair{}, err
	}
	key := core.NewPair(a, b, 0)
	err := s.db.QueryRowContext(ctx,
		`SELECT similarity FROM pair_similarities WHERE id_low = ? AND id_high = ?`,
		int64(key.Low), int64(key.High)).Scan(&key.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Pair{}, fmt.Errorf("pair (%d, %d): %w", key.Low, key.High, storage.ErrNotFound)
	}
	if err != nil {
		return core.Pair{}, err
	}
	return key, nil
}

// SimilarTo returns the items paired with id scoring at least minScore, by
// score descending and then ID ascending.
func (s *Store) SimilarTo(ctx context.Context, id core.ID, minScore float64, limit int) ([]core.Match, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT CASE WHEN id_low = ?1 THEN id_high ELSE id_low END AS other, similarity
		 FROM pair_similarities
		 WHERE (id_low = ?1 OR id_high = ?1) AND similarity >= ?2
		 ORDER BY similarity DESC, other ASC
		 LIMIT ?3`, int64(id), minScore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []core.Match
	for rows.Next() {
		var (
			other int64
			score float64
		)
		if err := rows.Scan(&other, &score); err != nil {
			return nil, err
		}
		matches = append(matches, core.Match{ID: core.ID(other), Score: score})
	}
	return matches, rows.Err()
}

// CountPairs returns the number of stored pairs.
func (s *Store) CountPairs(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM pair_similarities`)
}

// SaveRun stores summary, replacing any earlier record with the same run ID.
func (s *Store) SaveRun(ctx context.Context, summary *core.RunSummary) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_summaries (run_id, finished_at, summary) VALUES (?, ?, ?)`,
		summary.RunID, summary.FinishedAt.UnixMicro(), storage.MarshalRunSummary(summary))
	return err
}

// LoadLastRun returns the summary with the latest finish time, or nil, nil
// if no run has been recorded.
func (s *Store) LoadLastRun(ctx context.Context) (*core.RunSummary, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM run_summaries ORDER BY finished_at DESC, rowid DESC LIMIT 1`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.UnmarshalRunSummary(blob)
}

func (s *Store) count(ctx context.Context, query string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
