package badger

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

// EmbeddingRepository stores embeddings keyed by their external ID.
// It implements storage.EmbeddingSource, iterating in ascending ID order.
type EmbeddingRepository struct {
	backend *Backend
}

var _ storage.EmbeddingSource = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(backend *Backend) (*EmbeddingRepository, error) {
	return &EmbeddingRepository{
		backend: backend,
	}, nil
}

// Close releases resources. EmbeddingRepository has no resources to release.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// AddEmbeddings inserts or replaces embeddings by ID.
// Every embedding is validated before anything is written.
func (r *EmbeddingRepository) AddEmbeddings(ctx context.Context, embeddings ...*core.Embedding) error {
	for _, embedding := range embeddings {
		if err := core.ValidateEmbedding(embedding, 0); err != nil {
			return err
		}
	}

	return r.backend.WithWriteBatch(func(wb *badger.WriteBatch) error {
		for _, embedding := range embeddings {
			key := makeEmbeddingKey(embedding.ID)
			if err := wb.Set(key, storage.MarshalEmbedding(embedding)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteEmbeddings removes embeddings by their IDs.
// Returns ErrNotFound if any embedding doesn't exist.
func (r *EmbeddingRepository) DeleteEmbeddings(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			key := makeEmbeddingKey(id)
			if _, err := tx.Get(key); err != nil {
				if err == badger.ErrKeyNotFound {
					return fmt.Errorf("embedding %d: %w", id, storage.ErrNotFound)
				}
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetEmbedding retrieves a single embedding by ID.
// Returns ErrNotFound if the embedding doesn't exist.
func (r *EmbeddingRepository) GetEmbedding(ctx context.Context, id core.ID) (*core.Embedding, error) {
	var result *core.Embedding
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readEmbedding(tx, makeEmbeddingKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListEmbeddings returns up to limit embeddings in ascending ID order,
// skipping the first offset embeddings.
func (r *EmbeddingRepository) ListEmbeddings(ctx context.Context, offset, limit int) ([]*core.Embedding, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: offset %d, limit %d", storage.ErrInvalidQuery, offset, limit)
	}

	var results []*core.Embedding
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(embeddingPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		skipped := 0
		for iter.Rewind(); iter.Valid() && len(results) < limit; iter.Next() {
			if skipped < offset {
				skipped++
				continue
			}

			var embedding *core.Embedding
			err := iter.Item().Value(func(val []byte) error {
				var err error
				embedding, err = storage.UnmarshalEmbedding(val)
				return err
			})
			if err != nil {
				return fmt.Errorf("embedding at offset %d: %w", offset+len(results), err)
			}
			results = append(results, embedding)
		}
		return nil
	}, false)

	return results, err
}

// CountEmbeddings returns the number of stored embeddings.
func (r *EmbeddingRepository) CountEmbeddings(ctx context.Context) (int, error) {
	return r.backend.countPrefix(embeddingPrefix)
}

// readEmbedding reads an embedding from the transaction.
// Returns nil, nil if the key does not exist.
func readEmbedding(tx *badger.Txn, key []byte) (*core.Embedding, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var embedding *core.Embedding
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		embedding, unmarshalErr = storage.UnmarshalEmbedding(val)
		return unmarshalErr
	})
	return embedding, err
}
