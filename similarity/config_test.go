package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.NoError(t, config.Validate())
	assert.Equal(t, 500, config.ChunkSize)
	assert.Equal(t, 0.85, config.Threshold)
	assert.Equal(t, 100, config.InsertBatchSize)
	assert.Equal(t, 1000, config.FetchBatchSize)
	assert.Equal(t, 1, config.Workers)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"zero threshold", func(c *Config) { c.Threshold = 0 }},
		{"threshold above one", func(c *Config) { c.Threshold = 1.01 }},
		{"zero insert batch", func(c *Config) { c.InsertBatchSize = 0 }},
		{"zero fetch batch", func(c *Config) { c.FetchBatchSize = 0 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero report interval", func(c *Config) { c.ReportInterval = 0 }},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }},
		{"negative delay", func(c *Config) { c.RetryDelay = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.ErrorIs(t, config.Validate(), ErrInvalidConfig)
		})
	}

	config := DefaultConfig()
	config.Threshold = 1
	assert.NoError(t, config.Validate())
}
