package similarity

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/neardup/core"
)

func testConfig() *Config {
	config := DefaultConfig()
	config.RetryDelay = 0
	config.MaxRetries = 1
	return config
}

func runIndexer(t *testing.T, source *mockSource, store *mockStore, config *Config, opts ...IndexerOption) (*core.RunSummary, string, error) {
	t.Helper()
	var buf bytes.Buffer
	ix, err := NewIndexer(source, store, config, &buf, opts...)
	require.NoError(t, err)
	summary, err := ix.Run(context.Background())
	return summary, buf.String(), err
}

func TestIndexer_EndToEnd(t *testing.T) {
	source := &mockSource{embeddings: []*core.Embedding{
		{ID: 10, Vector: []float32{1, 0, 0}},
		{ID: 11, Vector: []float32{1, 0, 0}},
		{ID: 12, Vector: []float32{0, 1, 0}},
		{ID: 13, Vector: []float32{0, 0, 0}},
	}}
	store := newMockStore()

	summary, output, err := runIndexer(t, source, store, testConfig())
	require.NoError(t, err)

	pairs := store.sorted()
	require.Len(t, pairs, 1)
	assert.Equal(t, core.ID(10), pairs[0].Low)
	assert.Equal(t, core.ID(11), pairs[0].High)
	assert.Equal(t, 1.0, pairs[0].Score)

	assert.Equal(t, 4, summary.Embeddings)
	assert.Equal(t, 3, summary.Dimension)
	assert.Equal(t, int64(6), summary.Comparisons)
	assert.Equal(t, 1, summary.PairsFound)
	assert.Equal(t, 1, summary.PairsStored)
	assert.True(t, summary.Complete())
	assert.NotEmpty(t, summary.RunID)
	assert.False(t, summary.FinishedAt.Before(summary.StartedAt))

	assert.Contains(t, output, "4/4 rows")
	assert.Contains(t, output, "Total similar pairs found: 1")
	assert.Equal(t, 1, store.clears)
}

func TestIndexer_ThresholdSinglePair(t *testing.T) {
	sin := float32(math.Sqrt(1 - 0.9*0.9))
	source := &mockSource{embeddings: []*core.Embedding{
		{ID: 1, Vector: []float32{1, 0, 0}},
		{ID: 2, Vector: []float32{0.9, sin, 0}},
		{ID: 3, Vector: []float32{0, 0, 1}},
		{ID: 4, Vector: []float32{0, -1, 0}},
	}}
	store := newMockStore()

	_, _, err := runIndexer(t, source, store, testConfig())
	require.NoError(t, err)

	pairs := store.sorted()
	require.Len(t, pairs, 1)
	assert.Equal(t, core.ID(1), pairs[0].Low)
	assert.Equal(t, core.ID(2), pairs[0].High)
	assert.InDelta(t, 0.9, pairs[0].Score, 1e-6)
}

func TestIndexer_CanonicalOrderingWithDescendingIDs(t *testing.T) {
	source := &mockSource{embeddings: []*core.Embedding{
		{ID: 50, Vector: []float32{1, 1}},
		{ID: 40, Vector: []float32{1, 1}},
		{ID: 30, Vector: []float32{1, 1.01}},
	}}
	store := newMockStore()

	summary, _, err := runIndexer(t, source, store, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.PairsFound)

	for _, p := range store.sorted() {
		assert.Less(t, p.Low, p.High)
	}
}

func TestIndexer_ChunkSizeDoesNotChangeResult(t *testing.T) {
	vectors := randomVectors(12, 3, 11)
	embeddings := make([]*core.Embedding, len(vectors))
	for i, v := range vectors {
		embeddings[i] = &core.Embedding{ID: core.ID(i * 7), Vector: v}
	}

	var reference []core.Pair
	for _, chunkSize := range []int{1, 2, 10, 12} {
		for _, workers := range []int{1, 4} {
			config := testConfig()
			config.Threshold = 0.3
			config.ChunkSize = chunkSize
			config.Workers = workers
			config.InsertBatchSize = 4
			store := newMockStore()

			_, _, err := runIndexer(t, &mockSource{embeddings: embeddings}, store, config)
			require.NoError(t, err)

			if reference == nil {
				reference = store.sorted()
				require.NotEmpty(t, reference)
				continue
			}
			assert.Equal(t, reference, store.sorted(), "chunk size %d, workers %d", chunkSize, workers)
		}
	}
}

func TestIndexer_IdempotentRerun(t *testing.T) {
	source := &mockSource{embeddings: makeEmbeddings(20)}
	store := newMockStore()
	config := testConfig()
	config.ChunkSize = 6
	config.InsertBatchSize = 7

	first, _, err := runIndexer(t, source, store, config)
	require.NoError(t, err)
	firstPairs := store.sorted()

	source.offsets = nil
	second, _, err := runIndexer(t, source, store, config)
	require.NoError(t, err)

	assert.Equal(t, firstPairs, store.sorted())
	assert.Equal(t, first.PairsFound, second.PairsFound)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.True(t, second.Complete())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestIndexer_EmptySourceDoesNotClear(t *testing.T) {
	store := newMockStore()
	store.pairs[[2]core.ID{1, 2}] = 0.9

	summary, output, err := runIndexer(t, &mockSource{}, store, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Embeddings)
	assert.Contains(t, output, "No embeddings found")
	assert.Equal(t, 0, store.clears)
	assert.Len(t, store.sorted(), 1)
}

func TestIndexer_FetchFailureIsFatal(t *testing.T) {
	source := &mockSource{embeddings: makeEmbeddings(5), failAlways: true}
	store := newMockStore()
	store.pairs[[2]core.ID{1, 2}] = 0.9

	summary, _, err := runIndexer(t, source, store, testConfig())
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, errMockFailure)
	assert.Nil(t, summary)
	assert.Equal(t, 0, store.clears, "store must not be touched")
	assert.Equal(t, 0, store.upserts)
}

func TestIndexer_MalformedVectorIsFatal(t *testing.T) {
	source := &mockSource{embeddings: []*core.Embedding{
		{ID: 1, Vector: []float32{1, 0}},
		{ID: 2, Vector: []float32{1}},
	}}
	store := newMockStore()

	_, _, err := runIndexer(t, source, store, testConfig())
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Equal(t, 0, store.clears)
}

func TestIndexer_ClearFailureIsFatal(t *testing.T) {
	store := newMockStore()
	store.clearErr = errMockFailure

	_, _, err := runIndexer(t, &mockSource{embeddings: makeEmbeddings(5)}, store, testConfig())
	assert.ErrorIs(t, err, ErrClearFailed)
	assert.Equal(t, 0, store.upserts, "nothing is written after a failed clear")
}

func TestIndexer_FlushFailureIsCounted(t *testing.T) {
	// All vectors point the same way, so every pair is kept.
	embeddings := make([]*core.Embedding, 5)
	for i := range embeddings {
		embeddings[i] = &core.Embedding{ID: core.ID(i + 1), Vector: []float32{1, 1}}
	}
	store := newMockStore()
	store.failUpserts = 1
	config := testConfig()
	config.InsertBatchSize = 3
	runs := &mockRuns{}

	summary, output, err := runIndexer(t, &mockSource{embeddings: embeddings}, store, config, WithRunRepository(runs))
	require.NoError(t, err, "flush failures are recoverable")

	assert.Equal(t, 10, summary.PairsFound)
	assert.Equal(t, 7, summary.PairsStored)
	assert.Equal(t, 1, summary.FailedBatches)
	assert.False(t, summary.Complete())
	assert.Len(t, store.sorted(), 7)
	assert.Contains(t, output, "Failed batches: 1")

	assert.ErrorIs(t, CheckComplete(summary), ErrIncompleteIndex)

	require.Len(t, runs.saved, 1)
	assert.Equal(t, summary, runs.saved[0])
}

func TestIndexer_RunRepositoryFailureIsNotFatal(t *testing.T) {
	runs := &mockRuns{err: errMockFailure}
	summary, _, err := runIndexer(t, &mockSource{embeddings: makeEmbeddings(3)}, newMockStore(), testConfig(), WithRunRepository(runs))
	require.NoError(t, err)
	assert.NotNil(t, summary)
}

func TestNewIndexer_Validation(t *testing.T) {
	_, err := NewIndexer(nil, newMockStore(), nil, nil)
	assert.ErrorIs(t, err, ErrEmbeddingSourceRequired)

	_, err = NewIndexer(&mockSource{}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrPairStoreRequired)

	config := DefaultConfig()
	config.Threshold = 0
	_, err = NewIndexer(&mockSource{}, newMockStore(), config, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	ix, err := NewIndexer(&mockSource{}, newMockStore(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, ix.engine.ChunkSize())
}

func TestCheckComplete(t *testing.T) {
	assert.NoError(t, CheckComplete(nil))
	assert.NoError(t, CheckComplete(&core.RunSummary{PairsFound: 3, PairsStored: 3}))
	assert.ErrorIs(t, CheckComplete(&core.RunSummary{PairsFound: 3, PairsStored: 2, FailedBatches: 1}), ErrIncompleteIndex)
}
