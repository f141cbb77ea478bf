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

import (
	"fmt"
	"math"
)

// scoreTolerance absorbs float32 rounding on scores of unit vectors.
const scoreTolerance = 1e-6

// ValidateEmbedding validates an Embedding according to domain rules.
//
// Validation rules:
//   - Vector must not be empty
//   - Every component must be finite (no NaN or Inf)
//   - If dimension > 0, the vector length must equal dimension
//
// NOT validated:
//   - Vector magnitude (the zero vector is a legal "undefined direction")
//   - ID (any int64 is a valid external id)
func ValidateEmbedding(embedding *Embedding, dimension int) error {
	if embedding == nil {
		return fmt.Errorf("%w: embedding is nil", ErrInvalidEmbedding)
	}

	if len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: id %d: %w", ErrInvalidEmbedding, embedding.ID, ErrEmptyVector)
	}

	if dimension > 0 && len(embedding.Vector) != dimension {
		return fmt.Errorf("%w: id %d has %d components, expected %d",
			ErrDimensionMismatch, embedding.ID, len(embedding.Vector), dimension)
	}

	for i, v := range embedding.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("%w: id %d component %d is %v", ErrMalformedVector, embedding.ID, i, v)
		}
	}

	return nil
}

// ValidatePair validates a Pair according to domain rules.
//
// Validation rules:
//   - Low must be strictly less than High
//   - Score must lie within [-1, 1] (within float tolerance)
func ValidatePair(pair Pair) error {
	if pair.Low >= pair.High {
		return fmt.Errorf("%w: (%d, %d): %w", ErrInvalidPair, pair.Low, pair.High, ErrNonCanonicalPair)
	}

	if math.IsNaN(pair.Score) || pair.Score < -1-scoreTolerance || pair.Score > 1+scoreTolerance {
		return fmt.Errorf("%w: (%d, %d): %w: %v", ErrInvalidPair, pair.Low, pair.High, ErrScoreOutOfRange, pair.Score)
	}

	return nil
}
