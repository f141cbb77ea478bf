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


package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/neardup/api"
	"github.com/poiesic/neardup/config"
	"github.com/poiesic/neardup/core"
	"github.com/poiesic/neardup/lookup"
	"github.com/poiesic/neardup/similarity"
)

func setupLogger(c *cli.Context) error {
	if err := config.LoadEnv(c.String("env-file")); err != nil {
		return err
	}

	levelStr := strings.ToLower(c.String("log-level"))
	if !c.IsSet("log-level") {
		if v := os.Getenv("NEARDUP_LOG_LEVEL"); v != "" {
			levelStr = strings.ToLower(v)
		}
	}

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig resolves settings in order: defaults, config file, environment,
// command line flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvironment(); err != nil {
		return nil, err
	}

	setString := func(dst *string, flag string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	setInt := func(dst *int, flag string) {
		if c.IsSet(flag) {
			*dst = c.Int(flag)
		}
	}
	setString(&cfg.Storage.Backend, "backend")
	setString(&cfg.Storage.Path, "db")
	setString(&cfg.REST.URL, "rest-url")
	setString(&cfg.Server.Listen, "listen")
	setInt(&cfg.Similarity.ChunkSize, "chunk-size")
	setInt(&cfg.Similarity.InsertBatchSize, "insert-batch-size")
	setInt(&cfg.Similarity.FetchBatchSize, "fetch-batch-size")
	setInt(&cfg.Similarity.Workers, "workers")
	setInt(&cfg.Similarity.MaxRetries, "max-retries")
	if c.IsSet("threshold") {
		cfg.Similarity.Threshold = c.Float64("threshold")
	}
	if c.IsSet("retry-delay") {
		cfg.Similarity.RetryDelay = config.Duration(c.Duration("retry-delay"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func computeCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	opts := []similarity.IndexerOption{similarity.WithLogger(slog.Default())}
	if st.runs != nil {
		opts = append(opts, similarity.WithRunRepository(st.runs))
	}

	indexer, err := similarity.NewIndexer(st.source, st.pairs, cfg.SimilarityConfig(), c.App.ErrWriter, opts...)
	if err != nil {
		return fmt.Errorf("failed to create indexer: %w", err)
	}

	fmt.Fprintf(c.App.ErrWriter, "Backend: %s\n", cfg.Storage.Backend)
	fmt.Fprintf(c.App.ErrWriter, "Minimum similarity threshold: %.2f\n", cfg.Similarity.Threshold)

	summary, err := indexer.Run(ctx)
	if err != nil {
		return fmt.Errorf("similarity run failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "run %s: %d embeddings, %d pairs found, %d stored\n",
		summary.RunID, summary.Embeddings, summary.PairsFound, summary.PairsStored)

	if c.Bool("strict") {
		return similarity.CheckComplete(summary)
	}
	return nil
}

func similarCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	finder, err := lookup.NewFinder(st.lookup,
		lookup.WithMinScore(c.Float64("min-score")),
		lookup.WithLimit(c.Int("limit")),
	)
	if err != nil {
		return err
	}

	id := core.ID(c.Int64("id"))
	matches, err := finder.Similar(ctx, id)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	if len(matches) == 0 {
		fmt.Fprintf(c.App.Writer, "No near duplicates of %d\n", id)
		return nil
	}
	for _, m := range matches {
		fmt.Fprintf(c.App.Writer, "%d\t%.6f\n", m.ID, m.Score)
	}
	return nil
}

type importRecord struct {
	ID        json.RawMessage `json:"id"`
	Embedding json.RawMessage `json:"embedding"`
}

func importCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	if st.writer == nil {
		return fmt.Errorf("import is not supported by the %s backend", cfg.Storage.Backend)
	}
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	var in io.Reader = os.Stdin
	if path := c.String("file"); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)

	batch := make([]*core.Embedding, 0, batchSize)
	total, line := 0, 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := st.writer.AddEmbeddings(ctx, batch...); err != nil {
			return fmt.Errorf("failed to write embeddings: %w", err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec importRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		id, err := core.ParseID(rec.ID)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		vec, err := core.ParseVector(rec.Embedding)
		if err != nil {
			return fmt.Errorf("line %d (id %d): %w", line, id, err)
		}
		batch = append(batch, &core.Embedding{ID: id, Vector: vec})
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Imported %d embeddings\n", total)
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	w := c.App.Writer
	fmt.Fprintf(w, "Backend: %s\n", cfg.Storage.Backend)
	if st.counter != nil {
		embeddings, err := st.counter.CountEmbeddings(ctx)
		if err != nil {
			return err
		}
		pairs, err := st.counter.CountPairs(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Embeddings: %d\n", embeddings)
		fmt.Fprintf(w, "Pairs: %d\n", pairs)
	}

	if st.runs == nil {
		return nil
	}
	last, err := st.runs.LoadLastRun(ctx)
	if err != nil {
		return err
	}
	if last == nil {
		fmt.Fprintln(w, "Last run: none")
		return nil
	}
	fmt.Fprintf(w, "Last run: %s\n", last.RunID)
	fmt.Fprintf(w, "  Finished: %s (%.1fs)\n", last.FinishedAt.Format(time.RFC3339), last.Elapsed().Seconds())
	fmt.Fprintf(w, "  Embeddings: %d (dimension %d, fingerprint %016x)\n", last.Embeddings, last.Dimension, last.Fingerprint)
	fmt.Fprintf(w, "  Threshold: %.2f, chunk size %d\n", last.Threshold, last.ChunkSize)
	fmt.Fprintf(w, "  Pairs: %d found, %d stored, %d failed batches\n", last.PairsFound, last.PairsStored, last.FailedBatches)
	if !last.Complete() {
		fmt.Fprintln(w, "  Index is incomplete")
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	opts := []api.Option{api.WithLogger(slog.Default())}
	if st.runs != nil {
		opts = append(opts, api.WithRunRepository(st.runs))
	}
	server, err := api.NewServer(st.lookup, opts...)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
