package lookup

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage/badger"
)

func setupFinder(t *testing.T, opts ...Option) *Finder {
	t.Helper()
	_, pairs, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	_, err = pairs.UpsertPairs(context.Background(),
		core.NewPair(1, 2, 0.97),
		core.NewPair(3, 1, 0.88),
		core.NewPair(1, 4, 0.92),
		core.NewPair(2, 4, 0.9),
	)
	require.NoError(t, err)

	finder, err := NewFinder(pairs, opts...)
	require.NoError(t, err)
	return finder
}

func TestFinder_Similar(t *testing.T) {
	finder := setupFinder(t)

	matches, err := finder.Similar(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []core.Match{
		{ID: 2, Score: 0.97},
		{ID: 4, Score: 0.92},
		{ID: 3, Score: 0.88},
	}, matches)
}

func TestFinder_SimilarWithOptions(t *testing.T) {
	finder := setupFinder(t, WithMinScore(0.9), WithLimit(1))

	matches, err := finder.Similar(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []core.Match{{ID: 1, Score: 0.92}}, matches)
}

func TestFinder_SimilarUnknownID(t *testing.T) {
	finder := setupFinder(t)

	matches, err := finder.Similar(context.Background(), 99)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestFinder_Best(t *testing.T) {
	finder := setupFinder(t)
	ctx := context.Background()

	best, ok, err := finder.Best(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, core.Match{ID: 1, Score: 0.88}, best)

	_, ok, err = finder.Best(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingLookup struct{}

func (failingLookup) SimilarTo(context.Context, core.ID, float64, int) ([]core.Match, error) {
	return nil, errors.New("lookup failed")
}

func TestFinder_LookupError(t *testing.T) {
	finder, err := NewFinder(failingLookup{})
	require.NoError(t, err)

	_, err = finder.Similar(context.Background(), 1)
	assert.EqualError(t, err, "lookup failed")
}

func TestNewFinder_Validation(t *testing.T) {
	_, err := NewFinder(nil)
	assert.ErrorIs(t, err, ErrPairLookupRequired)

	_, err = NewFinder(failingLookup{}, WithMinScore(1.5))
	assert.ErrorIs(t, err, ErrInvalidMinScore)

	_, err = NewFinder(failingLookup{}, WithMinScore(math.NaN()))
	assert.ErrorIs(t, err, ErrInvalidMinScore)

	_, err = NewFinder(failingLookup{}, WithLimit(-1))
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
