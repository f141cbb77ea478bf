package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env style files into the process environment. Variables
// already set are not overridden. Missing files are ignored; with no
// arguments ".env" in the working directory is tried.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnvironment overrides settings from the process environment.
func (c *Config) ApplyEnvironment() error {
	return c.ApplyEnv(os.LookupEnv)
}

// ApplyEnv overrides settings from variables returned by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, names ...string) {
		for _, name := range names {
			if v, ok := lookup(name); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	integer := func(dst *int, name string) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
		}
		*dst = n
		return nil
	}

	str(&c.LogLevel, "NEARDUP_LOG_LEVEL")
	str(&c.Storage.Backend, "NEARDUP_BACKEND")
	str(&c.Storage.Path, "NEARDUP_DB")
	str(&c.REST.URL, "NEARDUP_REST_URL", "SUPABASE_URL")
	str(&c.REST.APIKey, "NEARDUP_REST_API_KEY", "SUPABASE_SERVICE_KEY", "SUPABASE_SERVICE_ROLE_KEY")
	str(&c.Server.Listen, "NEARDUP_LISTEN")

	if v, ok := lookup("NEARDUP_THRESHOLD"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: NEARDUP_THRESHOLD: %w", ErrInvalidConfig, err)
		}
		c.Similarity.Threshold = f
	}
	if v, ok := lookup("NEARDUP_RETRY_DELAY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: NEARDUP_RETRY_DELAY: %w", ErrInvalidConfig, err)
		}
		c.Similarity.RetryDelay = Duration(d)
	}

	for name, dst := range map[string]*int{
		"NEARDUP_CHUNK_SIZE":        &c.Similarity.ChunkSize,
		"NEARDUP_INSERT_BATCH_SIZE": &c.Similarity.InsertBatchSize,
		"NEARDUP_FETCH_BATCH_SIZE":  &c.Similarity.FetchBatchSize,
		"NEARDUP_WORKERS":           &c.Similarity.Workers,
		"NEARDUP_MAX_RETRIES":       &c.Similarity.MaxRetries,
	} {
		if err := integer(dst, name); err != nil {
			return err
		}
	}
	return nil
}
