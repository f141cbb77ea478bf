package badger

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

// PairRepository stores canonical similarity pairs.
// Each pair is written under its (low, high) key plus a reverse index entry
// so lookups from either side are prefix scans.
type PairRepository struct {
	backend *Backend
}

var (
	_ storage.PairStore  = (*PairRepository)(nil)
	_ storage.PairLookup = (*PairRepository)(nil)
)

// NewPairRepository creates a new PairRepository.
func NewPairRepository(backend *Backend) (*PairRepository, error) {
	return &PairRepository{
		backend: backend,
	}, nil
}

// Close releases resources. PairRepository has no resources to release.
func (r *PairRepository) Close() error {
	return nil
}

// ClearAll removes every stored pair and its index entries.
func (r *PairRepository) ClearAll(ctx context.Context) error {
	return r.backend.DropPrefix(pairPrefix, pairReversePrefix)
}

// UpsertPairs writes pairs in a single transaction.
// A pair whose key already exists keeps its stored score. The whole batch is
// rejected if any pair is not canonical.
func (r *PairRepository) UpsertPairs(ctx context.Context, pairs ...core.Pair) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	for _, pair := range pairs {
		if err := core.ValidatePair(pair); err != nil {
			return 0, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, pair := range pairs {
			key := makePairKey(pair.Low, pair.High)
			_, err := tx.Get(key)
			if err == nil {
				continue
			}
			if err != badger.ErrKeyNotFound {
				return err
			}

			if err := tx.Set(key, storage.MarshalScore(pair.Score)); err != nil {
				return err
			}
			if err := tx.Set(makePairReverseKey(pair.Low, pair.High), storage.MarshalScore(pair.Score)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}

	return len(pairs), nil
}

// GetPair retrieves the stored pair for two ids given in any order.
// Returns ErrNotFound if the pair doesn't exist.
func (r *PairRepository) GetPair(ctx context.Context, a, b core.ID) (core.Pair, error) {
	pair := core.NewPair(a, b, 0)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makePairKey(pair.Low, pair.High))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			pair.Score, err = storage.UnmarshalScore(val)
			return err
		})
	}, false)
	return pair, err
}

// SimilarTo returns the items paired with id, highest score first.
// Ties are broken by ascending ID so results are stable.
func (r *PairRepository) SimilarTo(ctx context.Context, id core.ID, minScore float64, limit int) ([]core.Match, error) {
	var matches []core.Match

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Pairs where id is the low side, then pairs where it is the high side.
		for _, prefix := range []string{pairPrefix, pairReversePrefix} {
			found, err := scanMatches(tx, prefix, id, minScore)
			if err != nil {
				return err
			}
			matches = append(matches, found...)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b core.Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

// AllPairs returns every stored pair in canonical key order.
func (r *PairRepository) AllPairs(ctx context.Context) ([]core.Pair, error) {
	var pairs []core.Pair

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pairPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			low, high, ok := splitCompositeKey(pairPrefix, item.Key())
			if !ok {
				return fmt.Errorf("%w: malformed pair key %x", storage.ErrSerializationFailed, item.Key())
			}

			pair := core.Pair{Low: low, High: high}
			err := item.Value(func(val []byte) error {
				var err error
				pair.Score, err = storage.UnmarshalScore(val)
				return err
			})
			if err != nil {
				return err
			}
			pairs = append(pairs, pair)
		}
		return nil
	}, false)

	return pairs, err
}

// CountPairs returns the number of stored pairs.
func (r *PairRepository) CountPairs(ctx context.Context) (int, error) {
	return r.backend.countPrefix(pairPrefix)
}

// scanMatches collects the partners of id under one of the pair prefixes.
func scanMatches(tx *badger.Txn, prefix string, id core.ID, minScore float64) ([]core.Match, error) {
	partial := makePartialPairKey(prefix, id)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = partial
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var matches []core.Match
	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		key := item.Key()
		if !bytes.HasPrefix(key, partial) {
			break
		}

		_, other, ok := splitCompositeKey(prefix, key)
		if !ok {
			return nil, fmt.Errorf("%w: malformed pair key %x", storage.ErrSerializationFailed, key)
		}

		var score float64
		err := item.Value(func(val []byte) error {
			var err error
			score, err = storage.UnmarshalScore(val)
			return err
		})
		if err != nil {
			return nil, err
		}

		if score >= minScore {
			matches = append(matches, core.Match{ID: other, Score: score})
		}
	}
	return matches, nil
}
