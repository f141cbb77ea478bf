// Package rest implements storage.EmbeddingSource, storage.PairStore and
// storage.PairLookup against a PostgREST endpoint such as Supabase.
//
// Embeddings are read from a table with an integer id column and a vector
// column; pairs are written to a table keyed by (low, high) id columns.
// Vector columns are accepted either as JSON arrays or as JSON strings
// holding an array, which is how pgvector values are serialized over REST.
package rest
