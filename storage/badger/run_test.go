package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/neardup/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRepository_SaveAndLoad(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	repo := NewRunRepository(backend)
	ctx := context.Background()

	last, err := repo.LoadLastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last, "no run recorded yet")

	now := time.Now().UTC().Truncate(time.Microsecond)
	first := &core.RunSummary{RunID: "first", StartedAt: now, FinishedAt: now.Add(time.Second), Embeddings: 4, PairsFound: 1, PairsStored: 1}
	second := &core.RunSummary{RunID: "second", StartedAt: now, FinishedAt: now.Add(2 * time.Second), Embeddings: 5, PairsFound: 2, PairsStored: 2}

	require.NoError(t, repo.SaveRun(ctx, first))
	require.NoError(t, repo.SaveRun(ctx, second))

	last, err = repo.LoadLastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, last)
}
