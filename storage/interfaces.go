package storage

import (
	"context"

	"github.com/poiesic/neardup/core"
)

// EmbeddingSource supplies (id, vector) records in a stable order.
// Implementations must return records ordered by ID ascending so that
// offset-based pagination is consistent across pages.
type EmbeddingSource interface {
	// ListEmbeddings returns up to limit embeddings starting at offset.
	// An empty or short page signals the end of the data.
	// Records without a vector are excluded by the source.
	ListEmbeddings(ctx context.Context, offset, limit int) ([]*core.Embedding, error)
}

// PairStore is the sink for canonical similarity pairs.
// A run clears the store and then writes every pair it finds.
type PairStore interface {
	// ClearAll removes every stored pair.
	// Clearing an empty or not yet created store is not an error.
	ClearAll(ctx context.Context) error

	// UpsertPairs writes pairs keyed by (Low, High).
	// A pair whose key already exists is ignored rather than rejected.
	// Returns the number of pairs accepted by the store; on error this may be
	// less than len(pairs).
	UpsertPairs(ctx context.Context, pairs ...core.Pair) (int, error)
}

// PairLookup answers "which items are similar to X" from a stored pair set.
type PairLookup interface {
	// SimilarTo returns the items paired with id whose score is >= minScore,
	// ordered by score descending. A limit <= 0 means no limit.
	SimilarTo(ctx context.Context, id core.ID, minScore float64, limit int) ([]core.Match, error)
}

// RunRepository persists the summary of the most recent run.
type RunRepository interface {
	// SaveRun stores summary as the most recent run.
	SaveRun(ctx context.Context, summary *core.RunSummary) error

	// LoadLastRun retrieves the most recent run summary.
	// Returns nil, nil if no run has been recorded.
	LoadLastRun(ctx context.Context) (*core.RunSummary, error)
}
