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


// Package storage provides the storage abstraction layer for neardup.
//
// This package defines the collaborator interfaces that decouple the similarity
// pipeline from where embeddings come from and where pairs go:
//
//   - EmbeddingSource: paginated supply of (id, vector) records
//   - PairStore: bulk clear and bulk upsert sink for canonical pairs
//   - PairLookup: read side of a stored pair index
//   - RunRepository: the summary of the most recent run
//
// Implementations live in sub-packages:
//
//   - storage/badger: embedded BadgerDB store
//   - storage/sqlite: SQLite database via modernc.org/sqlite
//   - storage/rest: PostgREST-compatible HTTP endpoint
//
// # Upsert Semantics
//
// Pair stores key pairs by (Low, High). Writing a pair whose key already exists
// is not an error; the existing row is kept. Because scores are a deterministic
// function of the inputs, either write yields the same stored value.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
// A timed-out call is reported as an error, never as an empty result.
package storage
