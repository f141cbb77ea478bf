package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage/badger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupServer(t *testing.T) (*gin.Engine, *badger.RunRepository) {
	t.Helper()
	_, pairs, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	_, err = pairs.UpsertPairs(context.Background(),
		core.NewPair(1, 2, 0.97),
		core.NewPair(3, 1, 0.88),
		core.NewPair(1, 4, 0.92),
	)
	require.NoError(t, err)

	runs := badger.NewRunRepository(backend)
	server, err := NewServer(pairs, WithRunRepository(runs))
	require.NoError(t, err)
	return server.SetupRouter(), runs
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	router, _ := setupServer(t)
	w := get(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServer_Similar(t *testing.T) {
	router, _ := setupServer(t)

	w := get(t, router, "/v1/items/1/similar")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"matches":[
		{"id":2,"score":0.97},
		{"id":4,"score":0.92},
		{"id":3,"score":0.88}
	]}`, w.Body.String())

	w = get(t, router, "/v1/items/1/similar?min_score=0.9&limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":1,"matches":[{"id":2,"score":0.97}]}`, w.Body.String())

	w = get(t, router, "/v1/items/99/similar")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":99,"matches":[]}`, w.Body.String())
}

func TestServer_SimilarBadRequests(t *testing.T) {
	router, _ := setupServer(t)

	for _, path := range []string{
		"/v1/items/abc/similar",
		"/v1/items/1/similar?min_score=high",
		"/v1/items/1/similar?min_score=3",
		"/v1/items/1/similar?min_score=NaN",
		"/v1/items/1/similar?limit=-2",
		"/v1/items/1/similar?limit=ten",
	} {
		w := get(t, router, path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

type failingLookup struct{}

func (failingLookup) SimilarTo(context.Context, core.ID, float64, int) ([]core.Match, error) {
	return nil, errors.New("backend down")
}

func TestServer_SimilarLookupFailure(t *testing.T) {
	server, err := NewServer(failingLookup{})
	require.NoError(t, err)

	w := get(t, server.SetupRouter(), "/v1/items/1/similar")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_LastRun(t *testing.T) {
	router, runs := setupServer(t)

	w := get(t, router, "/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, w.Code)

	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, runs.SaveRun(context.Background(), &core.RunSummary{
		RunID:       "run-1",
		StartedAt:   start,
		FinishedAt:  start.Add(time.Minute),
		Embeddings:  4,
		PairsFound:  2,
		PairsStored: 1,
		Fingerprint: 0xff,
	}))

	w = get(t, router, "/v1/runs/last")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, false, body["complete"])
	assert.Equal(t, "ff", body["fingerprint"])
	assert.Equal(t, float64(4), body["embeddings"])
}

func TestServer_LastRunWithoutRepository(t *testing.T) {
	server, err := NewServer(failingLookup{})
	require.NoError(t, err)

	w := get(t, server.SetupRouter(), "/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewServer_RequiresLookup(t *testing.T) {
	_, err := NewServer(nil)
	assert.ErrorIs(t, err, ErrPairLookupRequired)
}
