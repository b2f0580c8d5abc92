// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable via STORE_BACKEND.
const (
	StoreMemory = "memory"
	StoreNATS   = "nats"
	StoreHTTP   = "http"
)

// Bulk sink backends selectable via BULK_BACKEND.
const (
	BulkFile = "file"
	BulkS3   = "s3"
)

// Config holds all application configuration
type Config struct {
	// Runtime settings
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Source
	SourcePath string // headerless transaction CSV

	// Window horizons
	ShortWindow time.Duration
	LongWindow  time.Duration

	// Concurrency
	PartitionWorkers int // concurrent account partitions in the aggregator
	PublishWorkers   int // concurrent snapshot upserts

	// Feature store
	StoreBackend string // memory, nats, http
	StoreURL     string // base URL for the http backend
	NATSURL      string
	NATSBucket   string

	// Bulk sink
	BulkBackend string // file, s3
	BulkPath    string // output path for the file backend
	S3Bucket    string
	S3Key       string
	S3Region    string
	S3Endpoint  string // non-empty enables path-style addressing (MinIO etc.)

	// Run audit database (optional; in-memory store when unset)
	DatabaseURL string

	// Observability
	PushgatewayURL string // optional; metrics pushed once per run
	OTLPEndpoint   string // optional; tracing disabled when unset

	// Dev store server
	Port string
}

// Defaults
const (
	DefaultEnv         = "development"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultShortWindow = 10 * time.Minute
	DefaultLongWindow  = 7 * 24 * time.Hour
	DefaultWorkers     = 8
	DefaultStore       = StoreMemory
	DefaultBulk        = BulkFile
	DefaultBulkPath    = "out/derived_features.csv"
	DefaultNATSBucket  = "account-features"
	DefaultPort        = "8080"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		SourcePath:       os.Getenv("SOURCE_PATH"),
		ShortWindow:      getEnvDuration("SHORT_WINDOW", DefaultShortWindow),
		LongWindow:       getEnvDuration("LONG_WINDOW", DefaultLongWindow),
		PartitionWorkers: int(getEnvInt64("PARTITION_WORKERS", DefaultWorkers)),
		PublishWorkers:   int(getEnvInt64("PUBLISH_WORKERS", DefaultWorkers)),
		StoreBackend:     getEnv("STORE_BACKEND", DefaultStore),
		StoreURL:         os.Getenv("STORE_URL"),
		NATSURL:          os.Getenv("NATS_URL"),
		NATSBucket:       getEnv("NATS_BUCKET", DefaultNATSBucket),
		BulkBackend:      getEnv("BULK_BACKEND", DefaultBulk),
		BulkPath:         getEnv("BULK_PATH", DefaultBulkPath),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Key:            os.Getenv("S3_KEY"),
		S3Region:         getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		PushgatewayURL:   os.Getenv("PUSHGATEWAY_URL"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Port:             getEnv("PORT", DefaultPort),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
// SOURCE_PATH is validated at run time, not here, so that commands that
// never read the source (verify, devstore) load cleanly.
func (c *Config) Validate() error {
	if c.ShortWindow <= 0 || c.LongWindow <= 0 {
		return fmt.Errorf("window horizons must be positive")
	}
	if c.ShortWindow >= c.LongWindow {
		return fmt.Errorf("SHORT_WINDOW (%s) must be less than LONG_WINDOW (%s)", c.ShortWindow, c.LongWindow)
	}

	switch c.StoreBackend {
	case StoreMemory:
	case StoreNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required for the nats store backend")
		}
	case StoreHTTP:
		if c.StoreURL == "" {
			return fmt.Errorf("STORE_URL is required for the http store backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.BulkBackend {
	case BulkFile:
	case BulkS3:
		if c.S3Bucket == "" || c.S3Key == "" {
			return fmt.Errorf("S3_BUCKET and S3_KEY are required for the s3 bulk backend")
		}
	default:
		return fmt.Errorf("unknown BULK_BACKEND %q", c.BulkBackend)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
