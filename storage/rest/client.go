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


package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/storage"
)

// maxErrorBody bounds how much of a rejected response is kept in a StatusError.
const maxErrorBody = 512

// Config describes the endpoint and the table layout.
type Config struct {
	// BaseURL is the project URL; requests go to BaseURL + "/rest/v1/<table>".
	BaseURL string
	// APIKey is sent both as the apikey header and as a bearer token.
	APIKey string

	EmbeddingTable string
	IDColumn       string
	VectorColumn   string

	PairTable   string
	LowColumn   string
	HighColumn  string
	ScoreColumn string

	// Timeout bounds every request. Zero means no timeout.
	Timeout time.Duration
}

// DefaultConfig returns the table layout of the pattern library deployment.
func DefaultConfig() Config {
	return Config{
		EmbeddingTable: "patterns",
		IDColumn:       "id",
		VectorColumn:   "embedding",
		PairTable:      "pattern_similarities",
		LowColumn:      "pattern_id_1",
		HighColumn:     "pattern_id_2",
		ScoreColumn:    "similarity",
		Timeout:        60 * time.Second,
	}
}

// Client talks to a PostgREST endpoint.
type Client struct {
	config Config
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
}

var (
	_ storage.EmbeddingSource = (*Client)(nil)
	_ storage.PairStore       = (*Client)(nil)
	_ storage.PairLookup      = (*Client)(nil)
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.http = hc
		return nil
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// NewClient creates a client for config. Empty table and column names fall
// back to DefaultConfig.
func NewClient(config Config, opts ...Option) (*Client, error) {
	if config.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if config.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	base, err := url.Parse(strings.TrimRight(config.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	defaults := DefaultConfig()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&config.EmbeddingTable, defaults.EmbeddingTable)
	fill(&config.IDColumn, defaults.IDColumn)
	fill(&config.VectorColumn, defaults.VectorColumn)
	fill(&config.PairTable, defaults.PairTable)
	fill(&config.LowColumn, defaults.LowColumn)
	fill(&config.HighColumn, defaults.HighColumn)
	fill(&config.ScoreColumn, defaults.ScoreColumn)

	c := &Client{
		config: config,
		base:   base,
		http:   &http.Client{Timeout: config.Timeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "rest-client", "host", base.Host)
	return c, nil
}

// ListEmbeddings returns up to limit rows with a non-null vector, ordered by
// id ascending, starting at offset.
func (c *Client) ListEmbeddings(ctx context.Context, offset, limit int) ([]*core.Embedding, error) {
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("%w: offset %d, limit %d", storage.ErrInvalidQuery, offset, limit)
	}

	cfg := c.config
	query := url.Values{}
	query.Set("select", cfg.IDColumn+","+cfg.VectorColumn)
	query.Set(cfg.VectorColumn, "not.is.null")
	query.Set("order", cfg.IDColumn+".asc")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))

	resp, err := c.do(ctx, http.MethodGet, cfg.EmbeddingTable, query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, cfg.EmbeddingTable)
	}

	var rows []map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s page: %w", cfg.EmbeddingTable, err)
	}

	result := make([]*core.Embedding, 0, len(rows))
	for i, row := range rows {
		id, err := core.ParseID(row[cfg.IDColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid %s: %w", offset+i, cfg.IDColumn, err)
		}
		vec, err := core.ParseVector(row[cfg.VectorColumn])
		if err != nil {
			return nil, fmt.Errorf("row %d (id %d): %w", offset+i, id, err)
		}
		result = append(result, &core.Embedding{ID: id, Vector: vec})
	}
	return result, nil
}

// ClearAll deletes every row of the pair table. A missing table (404) means
// there is nothing to clear.
func (c *Client) ClearAll(ctx context.Context) error {
	cfg := c.config
	query := url.Values{}
	query.Set(cfg.LowColumn, "not.is.null")

	resp, err := c.do(ctx, http.MethodDelete, cfg.PairTable, query, nil,
		map[string]string{"Prefer": "return=minimal"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		c.logger.Debug("pair table not found, nothing to clear", "table", cfg.PairTable)
		return nil
	default:
		return c.statusError(resp, cfg.PairTable)
	}
}

// UpsertPairs posts pairs in a single request, letting the server ignore rows
// whose key already exists. Returns len(pairs) on success and 0 otherwise.
func (c *Client) UpsertPairs(ctx context.Context, pairs ...core.Pair) (int, error) {
	if len(pairs) == 0 {
		return 0, nil
	}
	cfg := c.config

	rows := make([]map[string]any, len(pairs))
	for i, p := range pairs {
		if err := core.ValidatePair(p); err != nil {
			return 0, err
		}
		rows[i] = map[string]any{
			cfg.LowColumn:   int64(p.Low),
			cfg.HighColumn:  int64(p.High),
			cfg.ScoreColumn: p.Score,
		}
	}
	body, err := json.Marshal(rows)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	query := url.Values{}
	query.Set("on_conflict", cfg.LowColumn+","+cfg.HighColumn)

	resp, err := c.do(ctx, http.MethodPost, cfg.PairTable, query, body,
		map[string]string{"Prefer": "return=minimal,resolution=ignore-duplicates"})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return len(pairs), nil
	default:
		return 0, c.statusError(resp, cfg.PairTable)
	}
}

// SimilarTo returns the items paired with id scoring at least minScore, by
// score descending and then ID ascending.
func (c *Client) SimilarTo(ctx context.Context, id core.ID, minScore float64, limit int) ([]core.Match, error) {
	cfg := c.config
	idText := strconv.FormatInt(int64(id), 10)

	query := url.Values{}
	query.Set("select", strings.Join([]string{cfg.LowColumn, cfg.HighColumn, cfg.ScoreColumn}, ","))
	query.Set("or", fmt.Sprintf("(%s.eq.%s,%s.eq.%s)", cfg.LowColumn, idText, cfg.HighColumn, idText))
	query.Set(cfg.ScoreColumn, "gte."+strconv.FormatFloat(minScore, 'f', -1, 64))
	query.Set("order", cfg.ScoreColumn+".desc")
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	resp, err := c.do(ctx, http.MethodGet, cfg.PairTable, query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp, cfg.PairTable)
	}

	var rows []map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s rows: %w", cfg.PairTable, err)
	}

	matches := make([]core.Match, 0, len(rows))
	for _, row := range rows {
		var p core.Pair
		var err error
		if p.Low, err = core.ParseID(row[cfg.LowColumn]); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", cfg.LowColumn, err)
		}
		if p.High, err = core.ParseID(row[cfg.HighColumn]); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", cfg.HighColumn, err)
		}
		var score *float64
		if err := json.Unmarshal(row[cfg.ScoreColumn], &score); err != nil || score == nil {
			return nil, fmt.Errorf("%w: invalid %s %s", storage.ErrSerializationFailed, cfg.ScoreColumn, row[cfg.ScoreColumn])
		}
		p.Score = *score
		matches = append(matches, core.Match{ID: p.Other(id), Score: p.Score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	return matches, nil
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body []byte, headers map[string]string) (*http.Response, error) {
	u := c.base.JoinPath("rest", "v1", table)
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.config.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, table, err)
	}
	c.logger.Debug("request", "method", method, "table", table, "status", resp.StatusCode, "elapsed", time.Since(start))
	return resp, nil
}

func (c *Client) statusError(resp *http.Response, table string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Method:     resp.Request.Method,
		Table:      table,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}
