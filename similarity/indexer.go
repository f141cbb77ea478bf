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


package similarity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

// Indexer orchestrates a full similarity run: fetch, clear, compute, store.
type Indexer struct {
	source   storage.EmbeddingSource
	store    storage.PairStore
	runs     storage.RunRepository
	config   *Config
	progress io.Writer
	engine   *Engine
	iterator *EmbeddingIterator
	logger   *slog.Logger
}

// IndexerOption is a functional option for configuring an Indexer.
type IndexerOption func(*Indexer) error

// WithLogger sets the logger for the indexer.
func WithLogger(logger *slog.Logger) IndexerOption {
	return func(ix *Indexer) error {
		ix.logger = logger
		return nil
	}
}

// WithRunRepository records every completed run summary in runs.
func WithRunRepository(runs storage.RunRepository) IndexerOption {
	return func(ix *Indexer) error {
		ix.runs = runs
		return nil
	}
}

// NewIndexer creates a new indexer.
// progress: where to write progress output (typically os.Stderr)
func NewIndexer(source storage.EmbeddingSource, store storage.PairStore, config *Config, progress io.Writer, opts ...IndexerOption) (*Indexer, error) {
	if source == nil {
		return nil, ErrEmbeddingSourceRequired
	}
	if store == nil {
		return nil, ErrPairStoreRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = io.Discard
	}

	ix := &Indexer{
		source:   source,
		store:    store,
		config:   config,
		progress: progress,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}

	engine, err := NewEngine(
		WithChunkSize(config.ChunkSize),
		WithWorkers(config.Workers),
		WithEngineLogger(ix.logger),
	)
	if err != nil {
		return nil, err
	}
	ix.engine = engine
	ix.iterator = NewEmbeddingIterator(source, config.FetchBatchSize, config.MaxRetries, config.RetryDelay)

	return ix, nil
}

// Run executes one similarity run. The pair store is cleared and then holds
// exactly the pairs found by this run, minus any batch that could not be
// written. Fetch and clear failures abort the run and return an error;
// batch write failures are counted in the returned summary instead.
func (ix *Indexer) Run(ctx context.Context) (*core.RunSummary, error) {
	summary := &core.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Threshold: ix.config.Threshold,
		ChunkSize: ix.config.ChunkSize,
	}
	logger := ix.logger.With("run", summary.RunID)

	fmt.Fprintf(ix.progress, "Fetching embeddings (page size: %d)\n", ix.config.FetchBatchSize)
	embeddings, dimension, err := ix.iterator.FetchAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	n := len(embeddings)
	summary.Embeddings = n
	summary.Dimension = dimension
	summary.Comparisons = core.Comparisons(n)
	summary.Fingerprint = core.Fingerprint(embeddings)

	if n == 0 {
		fmt.Fprintf(ix.progress, "No embeddings found (0 records)\n")
		summary.FinishedAt = time.Now().UTC()
		return summary, nil
	}
	fmt.Fprintf(ix.progress, "Loaded %d embeddings (dimension %d)\n", n, dimension)

	fmt.Fprintf(ix.progress, "Clearing existing pairs\n")
	err = RetryWithBackoff(ctx, "clear pairs", func() error {
		return ix.store.ClearAll(ctx)
	}, ix.config.MaxRetries, ix.config.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClearFailed, err)
	}

	ids := make([]core.ID, n)
	vectors := make([][]float32, n)
	for i, e := range embeddings {
		ids[i] = e.ID
		vectors[i] = NormalizeVector(e.Vector)
	}

	fmt.Fprintf(ix.progress, "Computing %d comparisons (threshold %.2f, chunk size %d)\n",
		summary.Comparisons, ix.config.Threshold, ix.config.ChunkSize)

	filter := Filter{Threshold: ix.config.Threshold}
	buffer := NewPairBuffer(ix.store, ix.config.InsertBatchSize,
		WithFlushRetry(ix.config.MaxRetries, ix.config.RetryDelay),
		WithBufferLogger(logger))
	tracker := NewProgressTracker(ix.progress, n, ix.config.ReportInterval)
	tracker.Start()

	found := 0
	err = ix.engine.Compute(ctx, vectors, func(block *Block) error {
		block.Each(func(i, j int, score float64) {
			pair, ok := filter.Apply(ids[i], ids[j], score)
			if !ok {
				return
			}
			found++
			buffer.Add(ctx, pair)
		})
		if block.LastInRow {
			tracker.Update(block.RowStart+block.Rows, found)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute similarities: %w", err)
	}

	buffer.Flush(ctx)
	tracker.Update(n, found)
	tracker.Finish()

	totals := buffer.Totals()
	summary.PairsFound = found
	summary.PairsStored = totals.Stored
	summary.FailedBatches = totals.FailedBatches
	summary.FinishedAt = time.Now().UTC()

	fmt.Fprintf(ix.progress, "=== Complete ===\n")
	fmt.Fprintf(ix.progress, "Total similar pairs found: %d\n", summary.PairsFound)
	fmt.Fprintf(ix.progress, "Pairs stored: %d\n", summary.PairsStored)
	if summary.FailedBatches > 0 {
		fmt.Fprintf(ix.progress, "Failed batches: %d (%d pairs not stored)\n", summary.FailedBatches, totals.Failed)
	}
	fmt.Fprintf(ix.progress, "Time elapsed: %.1fs\n", summary.Elapsed().Seconds())

	logger.Info("similarity run complete",
		"embeddings", n,
		"pairs_found", summary.PairsFound,
		"pairs_stored", summary.PairsStored,
		"failed_batches", summary.FailedBatches,
		"elapsed", summary.Elapsed())
	if totals.Err != nil {
		logger.Warn("pair index is incomplete", "err", totals.Err)
	}

	if ix.runs != nil {
		if err := ix.runs.SaveRun(ctx, summary); err != nil {
			logger.Warn("failed to record run summary", "err", err)
		}
	}

	return summary, nil
}

// CheckComplete returns ErrIncompleteIndex if summary reports pairs that
// were found but not stored.
func CheckComplete(summary *core.RunSummary) error {
	if summary == nil || summary.Complete() {
		return nil
	}
	return fmt.Errorf("%w: stored %d of %d pairs (%d failed batches)",
		ErrIncompleteIndex, summary.PairsStored, summary.PairsFound, summary.FailedBatches)
}
