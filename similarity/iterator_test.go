package similarity

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/neardup/core"
)

func makeEmbeddings(n int) []*core.Embedding {
	embeddings := make([]*core.Embedding, n)
	for i := range embeddings {
		embeddings[i] = &core.Embedding{ID: core.ID(i + 1), Vector: []float32{float32(i), 1}}
	}
	return embeddings
}

func TestEmbeddingIterator_ForEach(t *testing.T) {
	source := &mockSource{embeddings: makeEmbeddings(10)}
	it := NewEmbeddingIterator(source, 3, 1, 0)

	var sizes []int
	err := it.ForEach(context.Background(), func(page []*core.Embedding) error {
		sizes = append(sizes, len(page))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 3, 1}, sizes)
	assert.Equal(t, []int{0, 3, 6, 9}, source.offsets, "short page ends iteration")
}

func TestEmbeddingIterator_ExactMultipleEndsOnEmptyPage(t *testing.T) {
	source := &mockSource{embeddings: makeEmbeddings(6)}
	it := NewEmbeddingIterator(source, 3, 1, 0)

	all, dim, err := it.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assert.Equal(t, 2, dim)
	assert.Equal(t, []int{0, 3, 6}, source.offsets)
}

func TestEmbeddingIterator_Empty(t *testing.T) {
	it := NewEmbeddingIterator(&mockSource{}, 3, 1, 0)

	all, dim, err := it.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, dim)
}

func TestEmbeddingIterator_RetriesPage(t *testing.T) {
	source := &mockSource{embeddings: makeEmbeddings(4), failAt: 2}
	it := NewEmbeddingIterator(source, 2, 3, 0)

	all, _, err := it.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, []int{0, 2, 2, 4}, source.offsets)
}

func TestEmbeddingIterator_FetchFailure(t *testing.T) {
	source := &mockSource{embeddings: makeEmbeddings(4), failAlways: true}
	it := NewEmbeddingIterator(source, 2, 2, 0)

	_, _, err := it.FetchAll(context.Background())
	assert.ErrorIs(t, err, errMockFailure)
	assert.Equal(t, 2, source.calls)
}

func TestEmbeddingIterator_CallbackError(t *testing.T) {
	stop := errors.New("stop")
	it := NewEmbeddingIterator(&mockSource{embeddings: makeEmbeddings(4)}, 2, 1, 0)

	err := it.ForEach(context.Background(), func([]*core.Embedding) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestEmbeddingIterator_FetchAllValidation(t *testing.T) {
	tests := []struct {
		name       string
		embeddings []*core.Embedding
		wantErr    error
	}{
		{
			name: "dimension mismatch",
			embeddings: []*core.Embedding{
				{ID: 1, Vector: []float32{1, 0}},
				{ID: 2, Vector: []float32{1, 0, 0}},
			},
			wantErr: core.ErrDimensionMismatch,
		},
		{
			name: "non-finite component",
			embeddings: []*core.Embedding{
				{ID: 1, Vector: []float32{1, float32(math.NaN())}},
			},
			wantErr: core.ErrMalformedVector,
		},
		{
			name: "empty vector",
			embeddings: []*core.Embedding{
				{ID: 1, Vector: []float32{}},
			},
			wantErr: core.ErrEmptyVector,
		},
		{
			name: "duplicate id",
			embeddings: []*core.Embedding{
				{ID: 1, Vector: []float32{1, 0}},
				{ID: 1, Vector: []float32{0, 1}},
			},
			wantErr: core.ErrDuplicateID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := NewEmbeddingIterator(&mockSource{embeddings: tt.embeddings}, 10, 1, 0)
			_, _, err := it.FetchAll(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
