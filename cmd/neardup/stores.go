package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/neardup"
	"github.com/poiesic/neardup/config"
	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
	"github.com/poiesic/neardup/storage/rest"
	"github.com/poiesic/neardup/storage/sqlite"
)

type embeddingWriter interface {
	AddEmbeddings(ctx context.Context, embeddings ...*core.Embedding) error
}

type counter interface {
	CountEmbeddings(ctx context.Context) (int, error)
	CountPairs(ctx context.Context) (int, error)
}

// stores is the set of storage roles a backend provides. Roles a backend
// does not support are nil.
type stores struct {
	source  storage.EmbeddingSource
	pairs   storage.PairStore
	lookup  storage.PairLookup
	runs    storage.RunRepository
	writer  embeddingWriter
	counter counter
	close   func() error
}

// badgerCounter adapts the two Badger repositories to counter.
type badgerCounter struct {
	db *neardup.Database
}

func (b badgerCounter) CountEmbeddings(ctx context.Context) (int, error) {
	return b.db.EmbeddingRepository().CountEmbeddings(ctx)
}

func (b badgerCounter) CountPairs(ctx context.Context) (int, error) {
	return b.db.PairRepository().CountPairs(ctx)
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	logger := slog.Default()

	switch cfg.Storage.Backend {
	case config.BackendBadger:
		db, err := neardup.NewDatabase(cfg.Storage.Path, neardup.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return &stores{
			source:  db.EmbeddingRepository(),
			pairs:   db.PairRepository(),
			lookup:  db.PairRepository(),
			runs:    db.RunRepository(),
			writer:  db.EmbeddingRepository(),
			counter: badgerCounter{db: db},
			close:   db.Close,
		}, nil

	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.Path, sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return &stores{
			source:  store,
			pairs:   store,
			lookup:  store,
			runs:    store,
			writer:  store,
			counter: store,
			close:   store.Close,
		}, nil

	case config.BackendREST:
		client, err := rest.NewClient(cfg.RESTConfig(), rest.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create REST client: %w", err)
		}
		return &stores{
			source: client,
			pairs:  client,
			lookup: client,
			close:  func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalidConfig, cfg.Storage.Backend)
	}
}
