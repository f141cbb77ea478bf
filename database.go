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


package neardup

import (
	"io"
	"log/slog"

	"github.com/poiesic/neardup/lookup"
	"github.com/poiesic/neardup/similarity"
	"github.com/poiesic/neardup/storage/badger"
)

// Database bundles an embedded Badger store holding embeddings, the pair
// index and run summaries.
type Database struct {
	backend       *badger.Backend
	embeddingRepo *badger.EmbeddingRepository
	pairRepo      *badger.PairRepository
	runRepo       *badger.RunRepository
	logger        *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	inMemory bool
	logger   *slog.Logger
}

// WithInMemory keeps all data in memory; filePath is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger for the database and the components it creates.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	embeddingRepo, err := badger.NewEmbeddingRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	pairRepo, err := badger.NewPairRepository(backend)
	if err != nil {
		embeddingRepo.Close()
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:       backend,
		embeddingRepo: embeddingRepo,
		pairRepo:      pairRepo,
		runRepo:       badger.NewRunRepository(backend),
		logger:        options.logger,
	}, nil
}

func (db *Database) Close() error {
	if err := db.pairRepo.Close(); err != nil {
		db.logger.Error("error closing pair repository", "err", err)
		return err
	}
	if err := db.embeddingRepo.Close(); err != nil {
		db.logger.Error("error closing embedding repository", "err", err)
		return err
	}

	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) EmbeddingRepository() *badger.EmbeddingRepository {
	return db.embeddingRepo
}

func (db *Database) PairRepository() *badger.PairRepository {
	return db.pairRepo
}

func (db *Database) RunRepository() *badger.RunRepository {
	return db.runRepo
}

// NewIndexer creates an indexer that reads this database's embeddings and
// replaces its pair index, recording each run summary.
func (db *Database) NewIndexer(config *similarity.Config, progress io.Writer, opts ...similarity.IndexerOption) (*similarity.Indexer, error) {
	opts = append([]similarity.IndexerOption{
		similarity.WithLogger(db.logger),
		similarity.WithRunRepository(db.runRepo),
	}, opts...)
	return similarity.NewIndexer(db.embeddingRepo, db.pairRepo, config, progress, opts...)
}

func (db *Database) NewFinder(opts ...lookup.Option) (*lookup.Finder, error) {
	opts = append([]lookup.Option{lookup.WithLogger(db.logger)}, opts...)
	return lookup.NewFinder(db.pairRepo, opts...)
}
