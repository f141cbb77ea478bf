// Package sqlite implements the storage interfaces on a single SQLite file
// using the pure Go modernc.org/sqlite driver.
//
// The schema mirrors a hosted deployment: an embeddings table keyed by
// integer id with the vector as a little-endian float32 BLOB, and a
// pair_similarities table keyed by (id_low, id_high) with a CHECK that keeps
// every row canonical.
package sqlite
