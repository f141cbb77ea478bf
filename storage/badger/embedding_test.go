package badger

import (
	"context"
	"testing"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEmbeddingRepo(t *testing.T) *EmbeddingRepository {
	t.Helper()
	embeddingRepo, pairRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		pairRepo.Close()
		embeddingRepo.Close()
		backend.Close()
	})
	return embeddingRepo
}

func TestEmbeddingRepository_AddAndGet(t *testing.T) {
	repo := setupEmbeddingRepo(t)
	ctx := context.Background()

	err := repo.AddEmbeddings(ctx,
		&core.Embedding{ID: 10, Vector: []float32{1, 0, 0}},
		&core.Embedding{ID: 11, Vector: []float32{0, 1, 0}},
	)
	require.NoError(t, err)

	got, err := repo.GetEmbedding(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, core.ID(11), got.ID)
	assert.Equal(t, []float32{0, 1, 0}, got.Vector)

	_, err = repo.GetEmbedding(ctx, 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEmbeddingRepository_AddReplaces(t *testing.T) {
	repo := setupEmbeddingRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddEmbeddings(ctx, &core.Embedding{ID: 1, Vector: []float32{1, 0}}))
	require.NoError(t, repo.AddEmbeddings(ctx, &core.Embedding{ID: 1, Vector: []float32{0, 1}}))

	got, err := repo.GetEmbedding(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got.Vector)

	count, err := repo.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEmbeddingRepository_AddRejectsInvalid(t *testing.T) {
	repo := setupEmbeddingRepo(t)
	ctx := context.Background()

	err := repo.AddEmbeddings(ctx,
		&core.Embedding{ID: 1, Vector: []float32{1, 0}},
		&core.Embedding{ID: 2},
	)
	require.ErrorIs(t, err, core.ErrEmptyVector)

	count, err := repo.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing should be written when validation fails")
}

func TestEmbeddingRepository_ListPaginates(t *testing.T) {
	repo := setupEmbeddingRepo(t)
	ctx := context.Background()

	// Insert out of order, including a negative id
	ids := []core.ID{5, -3, 12, 0, 7}
	for _, id := range ids {
		require.NoError(t, repo.AddEmbeddings(ctx, &core.Embedding{ID: id, Vector: []float32{float32(id), 1}}))
	}

	page1, err := repo.ListEmbeddings(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, core.ID(-3), page1[0].ID)
	assert.Equal(t, core.ID(0), page1[1].ID)

	page2, err := repo.ListEmbeddings(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, core.ID(5), page2[0].ID)
	assert.Equal(t, core.ID(7), page2[1].ID)

	page3, err := repo.ListEmbeddings(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1, "short page signals end of data")
	assert.Equal(t, core.ID(12), page3[0].ID)

	page4, err := repo.ListEmbeddings(ctx, 6, 2)
	require.NoError(t, err)
	assert.Empty(t, page4)
}

func TestEmbeddingRepository_ListInvalidQuery(t *testing.T) {
	repo := setupEmbeddingRepo(t)
	ctx := context.Background()

	_, err := repo.ListEmbeddings(ctx, -1, 10)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = repo.ListEmbeddings(ctx, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestEmbeddingRepository_Delete(t *testing.T) {
	repo := setupEmbeddingRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.AddEmbeddings(ctx,
		&core.Embedding{ID: 1, Vector: []float32{1}},
		&core.Embedding{ID: 2, Vector: []float32{1}},
	))

	require.NoError(t, repo.DeleteEmbeddings(ctx, 1))

	_, err := repo.GetEmbedding(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = repo.DeleteEmbeddings(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	count, err := repo.CountEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
