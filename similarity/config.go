package similarity

import (
	"fmt"
	"time"
)

const (
	// DefaultThreshold keeps only near-duplicate matches.
	DefaultThreshold = 0.85

	// DefaultChunkSize is the default block dimension of the similarity engine.
	DefaultChunkSize = 500

	// DefaultInsertBatchSize is the default number of pairs per store write.
	DefaultInsertBatchSize = 100

	// DefaultFetchBatchSize is the default number of embeddings per page.
	DefaultFetchBatchSize = 1000
)

// Config holds configuration for a similarity run.
type Config struct {
	// ChunkSize is the block dimension C; memory per block pairing is C² scores
	ChunkSize int

	// Threshold is the minimum cosine similarity for a pair to be stored, in (0, 1]
	Threshold float64

	// InsertBatchSize is the number of pairs buffered before a store write
	InsertBatchSize int

	// FetchBatchSize is the number of embeddings requested per page
	FetchBatchSize int

	// Workers is the number of goroutines computing block products (1 = synchronous)
	Workers int

	// ReportInterval is how often to report progress (number of rows)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each store or source call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:       DefaultChunkSize,
		Threshold:       DefaultThreshold,
		InsertBatchSize: DefaultInsertBatchSize,
		FetchBatchSize:  DefaultFetchBatchSize,
		Workers:         1,
		ReportInterval:  1,
		MaxRetries:      3,
		RetryDelay:      1 * time.Second,
	}
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be greater than 0, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if !(c.Threshold > 0 && c.Threshold <= 1) {
		return fmt.Errorf("%w: threshold must be in (0, 1], got %v", ErrInvalidConfig, c.Threshold)
	}
	if c.InsertBatchSize <= 0 {
		return fmt.Errorf("%w: insert batch size must be greater than 0, got %d", ErrInvalidConfig, c.InsertBatchSize)
	}
	if c.FetchBatchSize <= 0 {
		return fmt.Errorf("%w: fetch batch size must be greater than 0, got %d", ErrInvalidConfig, c.FetchBatchSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be greater than 0, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.ReportInterval <= 0 {
		return fmt.Errorf("%w: report interval must be greater than 0, got %d", ErrInvalidConfig, c.ReportInterval)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("%w: max retries must be greater than 0, got %d", ErrInvalidConfig, c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay cannot be negative", ErrInvalidConfig)
	}
	return nil
}
