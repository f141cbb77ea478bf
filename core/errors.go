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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidEmbedding indicates an Embedding failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrEmptyVector indicates an embedding carries no vector components.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrMalformedVector indicates a vector contains non-finite or non-numeric values.
	ErrMalformedVector = errors.New("malformed vector")

	// ErrDimensionMismatch indicates a vector length differs from the run dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrMalformedID indicates an id that is missing, null or not an integer.
	ErrMalformedID = errors.New("malformed id")

	// ErrDuplicateID indicates two embeddings in one run share an ID.
	ErrDuplicateID = errors.New("duplicate embedding id")

	// ErrInvalidPair indicates a Pair failed validation.
	ErrInvalidPair = errors.New("invalid pair")

	// ErrNonCanonicalPair indicates a pair whose Low id is not below its High id.
	ErrNonCanonicalPair = errors.New("pair ids must satisfy low < high")

	// ErrScoreOutOfRange indicates a similarity score outside [-1, 1].
	ErrScoreOutOfRange = errors.New("score out of range")
)
