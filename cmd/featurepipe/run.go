package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/avolkov/featurepipe/internal/bulk"
	"github.com/avolkov/featurepipe/internal/config"
	"github.com/avolkov/featurepipe/internal/featurestore"
	"github.com/avolkov/featurepipe/internal/logging"
	"github.com/avolkov/featurepipe/internal/metrics"
	"github.com/avolkov/featurepipe/internal/pipeline"
	"github.com/avolkov/featurepipe/internal/publish"
	"github.com/avolkov/featurepipe/internal/runs"
	"github.com/avolkov/featurepipe/internal/source"
	"github.com/avolkov/featurepipe/internal/traces"
	"github.com/avolkov/featurepipe/internal/window"
)

func newRunCmd() *cobra.Command {
	var sourcePath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one batch pass over the transaction source",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if sourcePath != "" {
				cfg.SourcePath = sourcePath
			}
			if cfg.SourcePath == "" {
				return fmt.Errorf("no source: set SOURCE_PATH or pass --source")
			}
			return runBatch(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&sourcePath, "source", "", "transaction CSV path (overrides SOURCE_PATH)")
	return cmd
}

func runBatch(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("feature store: %w", err)
	}
	defer func() { _ = store.Close() }()

	bulkSink, err := newBulkSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bulk sink: %w", err)
	}

	runStore, closeDB, err := newRunStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("run store: %w", err)
	}
	defer closeDB()

	agg, err := window.New(window.Config{Short: cfg.ShortWindow, Long: cfg.LongWindow}, cfg.PartitionWorkers)
	if err != nil {
		return err
	}

	p := pipeline.New(
		source.NewCSVSource(cfg.SourcePath),
		agg,
		store,
		bulkSink,
		runStore,
		cfg.PublishWorkers,
	)

	result, runErr := p.Run(ctx)

	// Push final counters whether the pass succeeded or not; the gateway is
	// how operators see failed runs too.
	if err := metrics.Push(context.Background(), cfg.PushgatewayURL, "featurepipe"); err != nil {
		logger.Error("failed to push metrics", "error", err)
	}

	if runErr != nil {
		var incomplete *publish.IncompleteError
		if errors.As(runErr, &incomplete) {
			logger.Error("run failed: publish postcondition violated",
				"run_id", result.RunID,
				"expected", incomplete.Report.Expected,
				"succeeded", incomplete.Report.Succeeded,
				"failed", incomplete.Report.Failed,
				"failed_keys", incomplete.Report.FailedKeys,
			)
			return runErr
		}
		logger.Error("run failed", "error", runErr)
		return runErr
	}

	logger.Info("run succeeded",
		"run_id", result.RunID,
		"records_read", result.RecordsRead,
		"records_dropped", result.RecordsDropped,
		"distinct_keys", result.DistinctKeys,
		"published", result.Publish.Succeeded,
		"elapsed", result.Elapsed,
	)
	return nil
}

// newStore builds the configured feature store client.
func newStore(cfg *config.Config) (featurestore.Client, error) {
	switch cfg.StoreBackend {
	case config.StoreNATS:
		return featurestore.NewNATSStore(cfg.NATSURL, cfg.NATSBucket)
	case config.StoreHTTP:
		return featurestore.NewHTTPStore(cfg.StoreURL), nil
	case config.StoreMemory:
		return featurestore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// newBulkSink builds the configured bulk sink.
func newBulkSink(ctx context.Context, cfg *config.Config) (bulk.Sink, error) {
	switch cfg.BulkBackend {
	case config.BulkS3:
		return bulk.NewS3Sink(ctx, cfg.S3Bucket, cfg.S3Key, cfg.S3Region, cfg.S3Endpoint)
	case config.BulkFile:
		return bulk.NewFileSink(cfg.BulkPath), nil
	default:
		return nil, fmt.Errorf("unknown bulk backend %q", cfg.BulkBackend)
	}
}

// newRunStore builds the run audit store: Postgres when DATABASE_URL is set,
// in-memory otherwise.
func newRunStore(cfg *config.Config, logger *slog.Logger) (runs.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("no DATABASE_URL set, run audit trail kept in memory")
		return runs.NewMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return runs.NewPostgresStore(db), func() { _ = db.Close() }, nil
}
