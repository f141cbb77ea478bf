// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/lookup"
	"github.com/poiesic/neardup/storage"
)

// ErrPairLookupRequired is returned when a pair lookup is not provided.
var ErrPairLookupRequired = errors.New("pair lookup required")

// Server answers lookup requests from a stored pair index.
type Server struct {
	pairs  storage.PairLookup
	runs   storage.RunRepository
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRunRepository enables GET /v1/runs/last.
func WithRunRepository(runs storage.RunRepository) Option {
	return func(s *Server) {
		s.runs = runs
	}
}

// NewServer creates a server over pairs.
func NewServer(pairs storage.PairLookup, opts ...Option) (*Server, error) {
	if pairs == nil {
		return nil, ErrPairLookupRequired
	}
	s := &Server{
		pairs:  pairs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "api")
	return s, nil
}

// SetupRouter builds the gin engine with every route registered.
func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.GET("/items/:id/similar", s.Similar)
	v1.GET("/runs/last", s.LastRun)

	return r
}

type matchResponse struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

type similarResponse struct {
	ID      int64           `json:"id"`
	Matches []matchResponse `json:"matches"`
}

type runResponse struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Embeddings    int       `json:"embeddings"`
	Dimension     int       `json:"dimension"`
	Comparisons   int64     `json:"comparisons"`
	PairsFound    int       `json:"pairs_found"`
	PairsStored   int       `json:"pairs_stored"`
	FailedBatches int       `json:"failed_batches"`
	Complete      bool      `json:"complete"`
	Threshold     float64   `json:"threshold"`
	ChunkSize     int       `json:"chunk_size"`
	Fingerprint   string    `json:"fingerprint"`
}

// Similar handles GET /v1/items/:id/similar.
func (s *Server) Similar(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var opts []lookup.Option
	if v := c.Query("min_score"); v != "" {
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_score"})
			return
		}
		opts = append(opts, lookup.WithMinScore(score))
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		opts = append(opts, lookup.WithLimit(limit))
	}
	opts = append(opts, lookup.WithLogger(s.logger))

	finder, err := lookup.NewFinder(s.pairs, opts...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	matches, err := finder.Similar(c.Request.Context(), core.ID(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}

	resp := similarResponse{ID: id, Matches: make([]matchResponse, len(matches))}
	for i, m := range matches {
		resp.Matches[i] = matchResponse{ID: int64(m.ID), Score: m.Score}
	}
	c.JSON(http.StatusOK, resp)
}

// LastRun handles GET /v1/runs/last.
func (s *Server) LastRun(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history not available"})
		return
	}

	summary, err := s.runs.LoadLastRun(c.Request.Context())
	if err != nil {
		s.logger.Error("error loading last run", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
		return
	}
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded"})
		return
	}

	c.JSON(http.StatusOK, runResponse{
		RunID:         summary.RunID,
		StartedAt:     summary.StartedAt,
		FinishedAt:    summary.FinishedAt,
		Embeddings:    summary.Embeddings,
		Dimension:     summary.Dimension,
		Comparisons:   summary.Comparisons,
		PairsFound:    summary.PairsFound,
		PairsStored:   summary.PairsStored,
		FailedBatches: summary.FailedBatches,
		Complete:      summary.Complete(),
		Threshold:     summary.Threshold,
		ChunkSize:     summary.ChunkSize,
		Fingerprint:   strconv.FormatUint(summary.Fingerprint, 16),
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}
