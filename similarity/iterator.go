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
	"time"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

// EmbeddingIterator pages through every embedding of a source.
type EmbeddingIterator struct {
	source     storage.EmbeddingSource
	pageSize   int
	maxRetries int
	retryDelay time.Duration
}

// NewEmbeddingIterator creates a new embedding iterator.
// pageSize: number of embeddings to request per page (must be > 0)
// maxRetries: attempts per page before giving up
func NewEmbeddingIterator(source storage.EmbeddingSource, pageSize, maxRetries int, retryDelay time.Duration) *EmbeddingIterator {
	if pageSize <= 0 {
		pageSize = DefaultFetchBatchSize
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}

	return &EmbeddingIterator{
		source:     source,
		pageSize:   pageSize,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// ForEach fetches pages until an empty or short page, calling fn for each
// non-empty page. Iteration stops on the first error from fn or from a page
// fetch that still fails after retrying.
func (it *EmbeddingIterator) ForEach(ctx context.Context, fn func([]*core.Embedding) error) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var page []*core.Embedding
		err := RetryWithBackoff(ctx, "list embeddings", func() error {
			var err error
			page, err = it.source.ListEmbeddings(ctx, offset, it.pageSize)
			return err
		}, it.maxRetries, it.retryDelay)
		if err != nil {
			return fmt.Errorf("page at offset %d: %w", offset, err)
		}

		if len(page) == 0 {
			return nil
		}

		if err := fn(page); err != nil {
			return err
		}

		if len(page) < it.pageSize {
			return nil
		}
		offset += len(page)
	}
}

// FetchAll collects every embedding and validates the set as a whole: all
// vectors must be non-empty, finite and share one dimension, and ids must be
// unique. Returns the embeddings in source order and their dimension.
func (it *EmbeddingIterator) FetchAll(ctx context.Context) ([]*core.Embedding, int, error) {
	var (
		all       []*core.Embedding
		dimension int
		seen      = make(map[core.ID]struct{})
	)

	err := it.ForEach(ctx, func(page []*core.Embedding) error {
		for _, e := range page {
			if err := core.ValidateEmbedding(e, dimension); err != nil {
				return fmt.Errorf("record %d: %w", len(all), err)
			}
			if _, dup := seen[e.ID]; dup {
				return fmt.Errorf("%w: %d", core.ErrDuplicateID, e.ID)
			}
			seen[e.ID] = struct{}{}
			if dimension == 0 {
				dimension = e.Dimension()
			}
			all = append(all, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return all, dimension, nil
}
