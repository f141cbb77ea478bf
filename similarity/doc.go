// Package similarity builds the near-duplicate pair index.
//
// A run fetches every embedding from a storage.EmbeddingSource, normalizes the
// vectors to unit length, computes the upper-triangular all-pairs cosine
// similarity matrix block by block, keeps pairs at or above a threshold in
// canonical (low, high) id order and writes them to a storage.PairStore in
// bounded batches. Each run clears the store first and replaces its contents.
//
// The Engine never materializes the N×N matrix: memory per block pairing is
// bounded by ChunkSize² scores. The chunk size and worker count affect only
// throughput, never the resulting pairs or their scores.
package similarity
