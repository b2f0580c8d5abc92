// Package pipeline wires the batch pass end to end:
//
//	source -> window -> derive -> { bulk sink, latest -> snapshot publish }
//
// One invocation processes one finite transaction batch and exits with a
// single pass/fail result plus accounted publish counts; there is no partial
// success exposed to callers. Each invocation is recorded in the run audit
// store.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/avolkov/featurepipe/internal/bulk"
	"github.com/avolkov/featurepipe/internal/derive"
	"github.com/avolkov/featurepipe/internal/featurestore"
	"github.com/avolkov/featurepipe/internal/latest"
	"github.com/avolkov/featurepipe/internal/logging"
	"github.com/avolkov/featurepipe/internal/metrics"
	"github.com/avolkov/featurepipe/internal/model"
	"github.com/avolkov/featurepipe/internal/publish"
	"github.com/avolkov/featurepipe/internal/runs"
	"github.com/avolkov/featurepipe/internal/traces"
	"github.com/avolkov/featurepipe/internal/window"
)

// Source supplies one finite, replayable transaction batch. Load returns the
// parsed transactions plus the count of malformed rows it dropped.
type Source interface {
	Load(ctx context.Context) ([]model.Transaction, int64, error)
}

// Result is the outcome of a completed pass.
type Result struct {
	RunID          string
	RecordsRead    int
	RecordsDropped int64
	RecordsDerived int
	DistinctKeys   int
	Publish        publish.Report
	Elapsed        time.Duration
}

// Pipeline executes batch passes.
type Pipeline struct {
	source   Source
	agg      *window.Aggregator
	sink     *publish.Sink
	bulkSink bulk.Sink
	runStore runs.Store
}

// New assembles a pipeline from its collaborators.
func New(src Source, agg *window.Aggregator, store featurestore.Client, bulkSink bulk.Sink, runStore runs.Store, publishWorkers int) *Pipeline {
	return &Pipeline{
		source:   src,
		agg:      agg,
		sink:     publish.NewSink(store, publish.WithWorkers(publishWorkers)),
		bulkSink: bulkSink,
		runStore: runStore,
	}
}

// Run executes one full pass. The returned Result is populated as far as the
// pass got even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	log := logging.L(ctx)

	ctx, span := traces.StartSpan(ctx, "pipeline.run", traces.RunID(runID))
	defer span.End()

	started := time.Now()
	run := &runs.Run{ID: runID, StartedAt: started, Status: runs.StatusRunning}
	if err := p.runStore.Begin(ctx, run); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}

	result := &Result{RunID: runID}
	err := p.pass(ctx, result)
	result.Elapsed = time.Since(started)

	run.FinishedAt = time.Now()
	run.RecordsRead = int64(result.RecordsRead)
	run.RecordsDropped = result.RecordsDropped
	run.RecordsDerived = int64(result.RecordsDerived)
	run.DistinctKeys = int64(result.DistinctKeys)
	run.PublishSucceeded = int64(result.Publish.Succeeded)
	run.PublishFailed = int64(result.Publish.Failed)
	if err != nil {
		run.Status = runs.StatusFailed
		run.ErrorMessage = err.Error()
	} else {
		run.Status = runs.StatusSucceeded
	}
	if ferr := p.runStore.Finish(ctx, run); ferr != nil {
		log.Error("failed to record run finish", "error", ferr)
	}

	if err != nil {
		return result, err
	}
	log.Info("run complete",
		"records", result.RecordsRead,
		"dropped", result.RecordsDropped,
		"distinct_keys", result.DistinctKeys,
		"published", result.Publish.Succeeded,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// pass runs the stages in order, filling result as it goes.
func (p *Pipeline) pass(ctx context.Context, result *Result) error {
	log := logging.L(ctx)

	// Source.
	txs, dropped, err := p.loadStage(ctx)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	result.RecordsRead = len(txs)
	result.RecordsDropped = dropped
	if dropped > 0 {
		log.Warn("dropped malformed source rows", "dropped", dropped)
	}

	// Window aggregation.
	windowed, err := p.windowStage(ctx, txs)
	if err != nil {
		return fmt.Errorf("window: %w", err)
	}

	// Ratio derivation.
	derived := p.deriveStage(ctx, windowed)
	result.RecordsDerived = len(derived)

	// Latest-state reduction.
	snapshots := p.latestStage(ctx, derived)
	result.DistinctKeys = len(snapshots)
	metrics.DistinctKeys.Set(float64(len(snapshots)))

	// Bulk persistence and snapshot publishing are independent consumers of
	// the derived stream; run them concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer metrics.ObserveStage("bulk")()
		bctx, span := traces.StartSpan(gctx, "pipeline.bulk", traces.RecordCount(len(derived)))
		defer span.End()
		if err := p.bulkSink.Write(bctx, derived); err != nil {
			return fmt.Errorf("bulk sink: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer metrics.ObserveStage("publish")()
		pctx, span := traces.StartSpan(gctx, "pipeline.publish", traces.KeyCount(len(snapshots)))
		defer span.End()
		report, err := p.sink.Publish(pctx, snapshots)
		result.Publish = report
		if err != nil {
			return fmt.Errorf("snapshot sink: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func (p *Pipeline) loadStage(ctx context.Context) ([]model.Transaction, int64, error) {
	defer metrics.ObserveStage("source")()
	ctx, span := traces.StartSpan(ctx, "pipeline.source")
	defer span.End()
	return p.source.Load(ctx)
}

func (p *Pipeline) windowStage(ctx context.Context, txs []model.Transaction) ([]model.WindowedRecord, error) {
	defer metrics.ObserveStage("window")()
	ctx, span := traces.StartSpan(ctx, "pipeline.window", traces.RecordCount(len(txs)))
	defer span.End()
	return p.agg.Aggregate(ctx, txs)
}

func (p *Pipeline) deriveStage(ctx context.Context, windowed []model.WindowedRecord) []model.DerivedRecord {
	defer metrics.ObserveStage("derive")()
	_, span := traces.StartSpan(ctx, "pipeline.derive", traces.RecordCount(len(windowed)))
	defer span.End()

	derived := derive.All(windowed)
	for _, d := range derived {
		metrics.RecordsDerivedTotal.Inc()
		if d.Undefined {
			metrics.UndefinedRatiosTotal.Inc()
		}
	}
	return derived
}

// latestStage reduces the derived stream to one snapshot per account key.
// ObservedAt is stamped by the snapshot sink at publish time.
func (p *Pipeline) latestStage(ctx context.Context, derived []model.DerivedRecord) []model.Snapshot {
	defer metrics.ObserveStage("latest")()
	_, span := traces.StartSpan(ctx, "pipeline.latest", traces.RecordCount(len(derived)))
	defer span.End()

	records := latest.Extract(derived)
	snapshots := make([]model.Snapshot, len(records))
	for i, r := range records {
		snapshots[i] = model.SnapshotOf(r, time.Time{})
	}
	return snapshots
}
