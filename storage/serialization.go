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


package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/raw"
	"github.com/poiesic/neardup/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalEmbedding serializes an Embedding to bytes.
func MarshalEmbedding(embedding *core.Embedding) []byte {
	buf := make([]byte, core.EmbeddingMUS.Size(*embedding))
	core.EmbeddingMUS.Marshal(*embedding, buf)
	return buf
}

// UnmarshalEmbedding deserializes an Embedding from bytes.
func UnmarshalEmbedding(data []byte) (*core.Embedding, error) {
	embedding, n, err := core.EmbeddingMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &embedding, nil
}

// MarshalScore serializes a pair score to bytes.
func MarshalScore(score float64) []byte {
	buf := make([]byte, raw.Float64.Size(score))
	raw.Float64.Marshal(score, buf)
	return buf
}

// UnmarshalScore deserializes a pair score from bytes.
func UnmarshalScore(data []byte) (float64, error) {
	score, _, err := raw.Float64.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTruncatedData, err)
	}
	return score, nil
}

// MarshalRunSummary serializes a RunSummary to bytes.
func MarshalRunSummary(summary *core.RunSummary) []byte {
	buf := make([]byte, core.RunSummaryMUS.Size(*summary))
	core.RunSummaryMUS.Marshal(*summary, buf)
	return buf
}

// UnmarshalRunSummary deserializes a RunSummary from bytes.
func UnmarshalRunSummary(data []byte) (*core.RunSummary, error) {
	summary, _, err := core.RunSummaryMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &summary, nil
}
