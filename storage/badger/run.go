package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

// RunRepository implements storage.RunRepository for BadgerDB.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// SaveRun persists summary as the most recent run.
func (r *RunRepository) SaveRun(ctx context.Context, summary *core.RunSummary) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set([]byte(runSummaryKey), storage.MarshalRunSummary(summary)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// LoadLastRun retrieves the most recent run summary.
// Returns nil, nil if no run has been recorded.
func (r *RunRepository) LoadLastRun(ctx context.Context) (*core.RunSummary, error) {
	var summary *core.RunSummary
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(runSummaryKey))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			summary, unmarshalErr = storage.UnmarshalRunSummary(val)
			return unmarshalErr
		})
	}, false)

	return summary, err
}
