// Package config loads neardup settings from a TOML file, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/poiesic/neardup/similarity"
	"github.com/poiesic/neardup/storage/rest"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendREST   = "rest"
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration written as a Go duration string ("1s", "500ms").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

type RESTConfig struct {
	URL            string   `toml:"url"`
	APIKey         string   `toml:"api_key"`
	EmbeddingTable string   `toml:"embedding_table"`
	IDColumn       string   `toml:"id_column"`
	VectorColumn   string   `toml:"vector_column"`
	PairTable      string   `toml:"pair_table"`
	LowColumn      string   `toml:"low_column"`
	HighColumn     string   `toml:"high_column"`
	ScoreColumn    string   `toml:"score_column"`
	Timeout        Duration `toml:"timeout"`
}

type SimilarityConfig struct {
	ChunkSize       int      `toml:"chunk_size"`
	Threshold       float64  `toml:"min_similarity_threshold"`
	InsertBatchSize int      `toml:"insert_batch_size"`
	FetchBatchSize  int      `toml:"fetch_batch_size"`
	Workers         int      `toml:"workers"`
	ReportInterval  int      `toml:"report_interval"`
	MaxRetries      int      `toml:"max_retries"`
	RetryDelay      Duration `toml:"retry_delay"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type Config struct {
	LogLevel   string           `toml:"log_level"`
	Storage    StorageConfig    `toml:"storage"`
	REST       RESTConfig       `toml:"rest"`
	Similarity SimilarityConfig `toml:"similarity"`
	Server     ServerConfig     `toml:"server"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() *Config {
	sim := similarity.DefaultConfig()
	r := rest.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend: BackendBadger,
			Path:    "neardup.db",
		},
		REST: RESTConfig{
			EmbeddingTable: r.EmbeddingTable,
			IDColumn:       r.IDColumn,
			VectorColumn:   r.VectorColumn,
			PairTable:      r.PairTable,
			LowColumn:      r.LowColumn,
			HighColumn:     r.HighColumn,
			ScoreColumn:    r.ScoreColumn,
			Timeout:        Duration(r.Timeout),
		},
		Similarity: SimilarityConfig{
			ChunkSize:       sim.ChunkSize,
			Threshold:       sim.Threshold,
			InsertBatchSize: sim.InsertBatchSize,
			FetchBatchSize:  sim.FetchBatchSize,
			Workers:         sim.Workers,
			ReportInterval:  sim.ReportInterval,
			MaxRetries:      sim.MaxRetries,
			RetryDelay:      Duration(sim.RetryDelay),
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:8080",
		},
	}
}

// Load reads the TOML file at path on top of DefaultConfig. Keys missing from
// the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings for the selected backend and the similarity run.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendBadger, BackendSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage path required for %s backend", ErrInvalidConfig, c.Storage.Backend)
		}
	case BackendREST:
		if c.REST.URL == "" {
			return fmt.Errorf("%w: rest url required (set SUPABASE_URL)", ErrInvalidConfig)
		}
		if c.REST.APIKey == "" {
			return fmt.Errorf("%w: rest api key required (set SUPABASE_SERVICE_KEY)", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if _, err := c.Level(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if err := c.SimilarityConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// SimilarityConfig converts the [similarity] section.
func (c *Config) SimilarityConfig() *similarity.Config {
	s := c.Similarity
	return &similarity.Config{
		ChunkSize:       s.ChunkSize,
		Threshold:       s.Threshold,
		InsertBatchSize: s.InsertBatchSize,
		FetchBatchSize:  s.FetchBatchSize,
		Workers:         s.Workers,
		ReportInterval:  s.ReportInterval,
		MaxRetries:      s.MaxRetries,
		RetryDelay:      time.Duration(s.RetryDelay),
	}
}

// RESTConfig converts the [rest] section.
func (c *Config) RESTConfig() rest.Config {
	r := c.REST
	return rest.Config{
		BaseURL:        r.URL,
		APIKey:         r.APIKey,
		EmbeddingTable: r.EmbeddingTable,
		IDColumn:       r.IDColumn,
		VectorColumn:   r.VectorColumn,
		PairTable:      r.PairTable,
		LowColumn:      r.LowColumn,
		HighColumn:     r.HighColumn,
		ScoreColumn:    r.ScoreColumn,
		Timeout:        time.Duration(r.Timeout),
	}
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}
