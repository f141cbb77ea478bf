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

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid similarity config")

	// ErrInvalidChunkSize is returned when the engine chunk size is < 1.
	ErrInvalidChunkSize = errors.New("chunk size must be greater than 0")

	// ErrEmbeddingSourceRequired is returned when an embedding source is not provided.
	ErrEmbeddingSourceRequired = errors.New("embedding source required")

	// ErrPairStoreRequired is returned when a pair store is not provided.
	ErrPairStoreRequired = errors.New("pair store required")

	// ErrClearFailed is returned when the pair store could not be cleared.
	// The run stops before computing so stale and fresh pairs never mix.
	ErrClearFailed = errors.New("failed to clear pair store")

	// ErrFetchFailed is returned when embeddings could not be fetched.
	ErrFetchFailed = errors.New("failed to fetch embeddings")

	// ErrIncompleteIndex is returned by CheckComplete when some found pairs
	// were not stored.
	ErrIncompleteIndex = errors.New("pair index is incomplete")
)
