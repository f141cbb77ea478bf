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
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

// FlushResult reports the outcome of writing one batch of pairs.
type FlushResult struct {
	// Attempted is the number of pairs in the batch.
	Attempted int
	// Stored is the number of pairs the store accepted.
	Stored int
	// Failed is Attempted - Stored.
	Failed int
	// Err is the last store error when the batch was not fully written.
	Err error
}

// OK reports whether the whole batch was written.
func (r FlushResult) OK() bool {
	return r.Err == nil
}

// BufferTotals accumulates flush results over the life of a PairBuffer.
type BufferTotals struct {
	Added         int
	Stored        int
	Failed        int
	Batches       int
	FailedBatches int
	// Err joins the errors of every failed batch.
	Err error
}

// PairBuffer accumulates pairs and writes them to a PairStore in batches of
// a fixed capacity. A batch that still fails after retrying is dropped,
// logged and counted; later batches are unaffected.
//
// PairBuffer is not safe for concurrent use.
type PairBuffer struct {
	store      storage.PairStore
	capacity   int
	pending    []core.Pair
	maxRetries int
	retryDelay time.Duration
	totals     BufferTotals
	logger     *slog.Logger
}

// BufferOption is a functional option for configuring a PairBuffer.
type BufferOption func(*PairBuffer)

// WithFlushRetry sets how often a failing batch is retried.
func WithFlushRetry(maxRetries int, retryDelay time.Duration) BufferOption {
	return func(b *PairBuffer) {
		if maxRetries > 0 {
			b.maxRetries = maxRetries
		}
		b.retryDelay = retryDelay
	}
}

// WithBufferLogger sets the logger for the buffer.
func WithBufferLogger(logger *slog.Logger) BufferOption {
	return func(b *PairBuffer) {
		b.logger = logger
	}
}

// NewPairBuffer creates a buffer that flushes to store every capacity pairs.
func NewPairBuffer(store storage.PairStore, capacity int, opts ...BufferOption) *PairBuffer {
	if capacity <= 0 {
		capacity = DefaultInsertBatchSize
	}
	b := &PairBuffer{
		store:      store,
		capacity:   capacity,
		pending:    make([]core.Pair, 0, capacity),
		maxRetries: 1,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add queues a pair. When the buffer reaches capacity it is flushed and the
// flush result is returned with true.
func (b *PairBuffer) Add(ctx context.Context, pair core.Pair) (FlushResult, bool) {
	b.pending = append(b.pending, pair)
	b.totals.Added++
	if len(b.pending) < b.capacity {
		return FlushResult{}, false
	}
	return b.Flush(ctx), true
}

// Len returns the number of pairs waiting to be flushed.
func (b *PairBuffer) Len() int {
	return len(b.pending)
}

// Flush writes all pending pairs. The buffer is empty afterwards whatever
// the outcome. Flushing an empty buffer is a no-op.
func (b *PairBuffer) Flush(ctx context.Context) FlushResult {
	if len(b.pending) == 0 {
		return FlushResult{}
	}

	batch := b.pending
	result := FlushResult{Attempted: len(batch)}

	err := RetryWithBackoff(ctx, "upsert pairs", func() error {
		stored, err := b.store.UpsertPairs(ctx, batch...)
		result.Stored = stored
		return err
	}, b.maxRetries, b.retryDelay)

	if err != nil {
		result.Err = err
		if result.Stored > result.Attempted {
			result.Stored = result.Attempted
		}
		result.Failed = result.Attempted - result.Stored
		b.totals.FailedBatches++
		b.totals.Err = errors.Join(b.totals.Err, err)
		b.logger.Error("failed to store pair batch",
			"attempted", result.Attempted, "stored", result.Stored, "err", err)
	} else {
		result.Stored = result.Attempted
	}

	b.totals.Batches++
	b.totals.Stored += result.Stored
	b.totals.Failed += result.Failed

	b.pending = make([]core.Pair, 0, b.capacity)
	return result
}

// Totals returns the accumulated results of every flush so far.
func (b *PairBuffer) Totals() BufferTotals {
	return b.totals
}
