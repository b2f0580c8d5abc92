package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultShortWindow, cfg.ShortWindow)
	assert.Equal(t, DefaultLongWindow, cfg.LongWindow)
	assert.Equal(t, DefaultWorkers, cfg.PartitionWorkers)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, BulkFile, cfg.BulkBackend)
	assert.Equal(t, DefaultBulkPath, cfg.BulkPath)
	assert.Equal(t, DefaultNATSBucket, cfg.NATSBucket)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("SOURCE_PATH", "/data/txs.csv")
	t.Setenv("SHORT_WINDOW", "5m")
	t.Setenv("LONG_WINDOW", "48h")
	t.Setenv("PARTITION_WORKERS", "16")
	t.Setenv("STORE_BACKEND", "nats")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("BULK_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "features")
	t.Setenv("S3_KEY", "derived/latest.csv")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "/data/txs.csv", cfg.SourcePath)
	assert.Equal(t, 5*time.Minute, cfg.ShortWindow)
	assert.Equal(t, 48*time.Hour, cfg.LongWindow)
	assert.Equal(t, 16, cfg.PartitionWorkers)
	assert.Equal(t, StoreNATS, cfg.StoreBackend)
	assert.Equal(t, BulkS3, cfg.BulkBackend)
}

func TestLoadInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("SHORT_WINDOW", "soon")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultShortWindow, cfg.ShortWindow)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ShortWindow:  10 * time.Minute,
			LongWindow:   7 * 24 * time.Hour,
			StoreBackend: StoreMemory,
			BulkBackend:  BulkFile,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"short >= long", func(c *Config) { c.ShortWindow = c.LongWindow }, "SHORT_WINDOW"},
		{"negative window", func(c *Config) { c.LongWindow = -time.Hour }, "positive"},
		{"unknown store", func(c *Config) { c.StoreBackend = "redis" }, "STORE_BACKEND"},
		{"nats without url", func(c *Config) { c.StoreBackend = StoreNATS }, "NATS_URL"},
		{"http without url", func(c *Config) { c.StoreBackend = StoreHTTP }, "STORE_URL"},
		{"unknown bulk", func(c *Config) { c.BulkBackend = "gcs" }, "BULK_BACKEND"},
		{"s3 without bucket", func(c *Config) { c.BulkBackend = BulkS3 }, "S3_BUCKET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
