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
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/neardup/core"
)

// Block is the dense similarity product of row block B_a against column
// block B_b. Rows and columns are global indices into the vector slice the
// engine was given. A Block is only valid for the duration of the callback
// that receives it; its storage is reused for the next pairing.
type Block struct {
	// RowStart is the global index of the first row.
	RowStart int
	// ColStart is the global index of the first column.
	ColStart int
	Rows     int
	Cols     int
	// LastInRow is set on the final pairing of a row block.
	LastInRow bool

	scores []float64
}

func newBlock(size int) *Block {
	return &Block{scores: make([]float64, size*size)}
}

// At returns the score of global pair (RowStart+r, ColStart+c).
func (b *Block) At(r, c int) float64 {
	return b.scores[r*b.Cols+c]
}

// Diagonal reports whether the block pairs a row block with itself.
func (b *Block) Diagonal() bool {
	return b.RowStart == b.ColStart
}

// Each calls fn for every cell strictly above the main diagonal of the full
// matrix, i.e. every pair with i < j, in row-major order.
func (b *Block) Each(fn func(i, j int, score float64)) {
	for r := 0; r < b.Rows; r++ {
		first := 0
		if b.Diagonal() {
			first = r + 1
		}
		row := b.scores[r*b.Cols : (r+1)*b.Cols]
		for c := first; c < b.Cols; c++ {
			fn(b.RowStart+r, b.ColStart+c, row[c])
		}
	}
}

// Engine computes the upper triangle of the all-pairs dot product matrix of a
// set of vectors in square blocks, without ever holding more than one block
// per worker.
type Engine struct {
	chunkSize int
	workers   int
	logger    *slog.Logger
}

// EngineOption is a functional option for configuring an Engine.
type EngineOption func(*Engine) error

// WithChunkSize sets the block dimension.
func WithChunkSize(size int) EngineOption {
	return func(e *Engine) error {
		if size <= 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
		}
		e.chunkSize = size
		return nil
	}
}

// WithWorkers sets how many block products are computed concurrently.
// Values below 1 are treated as 1.
func WithWorkers(workers int) EngineOption {
	return func(e *Engine) error {
		if workers < 1 {
			workers = 1
		}
		e.workers = workers
		return nil
	}
}

// WithEngineLogger sets the logger for the engine.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// NewEngine creates a new similarity engine.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		chunkSize: DefaultChunkSize,
		workers:   1,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "similarity-engine")
	return e, nil
}

// ChunkSize returns the configured block dimension.
func (e *Engine) ChunkSize() int {
	return e.chunkSize
}

// Compute visits every block pairing (a, b) with b >= a, in increasing a and
// then increasing b, and hands each computed Block to fn. The vectors must
// share one dimension; they are expected to be normalized already, in which
// case each score is the cosine similarity.
//
// The score of a pair {i, j} with i < j is always the float64 dot product of
// vectors[i] with vectors[j], accumulated in index order, so results are
// identical for every chunk size and worker count.
//
// Compute stops at the first error returned by fn and checks ctx between
// block pairings.
func (e *Engine) Compute(ctx context.Context, vectors [][]float32, fn func(*Block) error) error {
	n := len(vectors)
	if n < 2 {
		return nil
	}
	dimension := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("%w: vector %d has %d components, expected %d",
				core.ErrDimensionMismatch, i, len(v), dimension)
		}
	}

	size := min(e.chunkSize, n)
	e.logger.Debug("computing similarity blocks",
		"vectors", n, "dimension", dimension, "chunkSize", e.chunkSize, "workers", e.workers)

	if e.workers == 1 {
		return e.computeSerial(ctx, vectors, size, fn)
	}
	return e.computeParallel(ctx, vectors, size, fn)
}

func (e *Engine) computeSerial(ctx context.Context, vectors [][]float32, size int, fn func(*Block) error) error {
	n := len(vectors)
	block := newBlock(size)
	for a := 0; a < n; a += e.chunkSize {
		for b := a; b < n; b += e.chunkSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.fill(block, vectors, a, b)
			if err := fn(block); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeParallel works through each row block in waves of at most
// e.workers pairings. A wave is computed concurrently into private blocks and
// then delivered to fn in column order.
func (e *Engine) computeParallel(ctx context.Context, vectors [][]float32, size int, fn func(*Block) error) error {
	pool, err := ants.NewPool(e.workers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	n := len(vectors)
	blocks := make([]*Block, e.workers)
	for k := range blocks {
		blocks[k] = newBlock(size)
	}

	for a := 0; a < n; a += e.chunkSize {
		for b := a; b < n; {
			if err := ctx.Err(); err != nil {
				return err
			}

			var wg sync.WaitGroup
			var submitErr error
			wave := 0
			for ; wave < e.workers && b < n; wave, b = wave+1, b+e.chunkSize {
				block, col := blocks[wave], b
				wg.Add(1)
				if err := pool.Submit(func() {
					defer wg.Done()
					e.fill(block, vectors, a, col)
				}); err != nil {
					wg.Done()
					submitErr = err
					break
				}
			}
			wg.Wait()
			if submitErr != nil {
				return fmt.Errorf("failed to submit block: %w", submitErr)
			}

			for k := 0; k < wave; k++ {
				if err := fn(blocks[k]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// fill computes the product of row block starting at a with column block
// starting at b into block.
func (e *Engine) fill(block *Block, vectors [][]float32, a, b int) {
	n := len(vectors)
	rows := min(e.chunkSize, n-a)
	cols := min(e.chunkSize, n-b)

	block.RowStart = a
	block.ColStart = b
	block.Rows = rows
	block.Cols = cols
	block.LastInRow = b+e.chunkSize >= n

	for r := 0; r < rows; r++ {
		row := vectors[a+r]
		out := block.scores[r*cols : (r+1)*cols]
		for c := range out {
			out[c] = dot(row, vectors[b+c])
		}
	}
}

func dot(x, y []float32) float64 {
	var sum float64
	for k := range x {
		sum += float64(x[k]) * float64(y[k])
	}
	return sum
}
