// Package publish pushes per-account snapshots into the feature store.
//
// Publishing is all-or-nothing at the run level: every snapshot is attempted
// exactly once through a bounded worker pool, successes and failures are
// accounted, and the run fails after the full batch if any attempt failed or
// the success count does not match the number of distinct keys. Individual
// failures are never retried in-line; snapshots are idempotent, so the whole
// run is simply re-publishable.
package publish

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avolkov/featurepipe/internal/featurestore"
	"github.com/avolkov/featurepipe/internal/logging"
	"github.com/avolkov/featurepipe/internal/metrics"
	"github.com/avolkov/featurepipe/internal/model"
)

// Feature names written for every snapshot, in wire order.
const (
	FeatureCountLong = "count_long"
	FeatureMeanLong  = "mean_long"
	FeatureTransTime = "trans_time" // publish-time freshness, integer seconds
)

// Report accounts a full publish batch.
type Report struct {
	Expected   int      // distinct account keys in the batch
	Succeeded  int      // acknowledged upserts
	Failed     int      // rejected or timed-out upserts
	FailedKeys []string // keys of failed upserts, sorted
}

// Complete reports whether the run-level postcondition holds: zero failures
// and one acknowledged upsert per distinct key.
func (r Report) Complete() bool {
	return r.Failed == 0 && r.Succeeded == r.Expected
}

// Err returns nil for a complete report, or an *IncompleteError.
func (r Report) Err() error {
	if r.Complete() {
		return nil
	}
	return &IncompleteError{Report: r}
}

// IncompleteError is the typed run-level failure: the batch was fully
// attempted but the postcondition did not hold.
type IncompleteError struct {
	Report Report
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("publish incomplete: %d/%d snapshots acknowledged, %d failed",
		e.Report.Succeeded, e.Report.Expected, e.Report.Failed)
}

// Sink publishes snapshots through a feature store client.
type Sink struct {
	store   featurestore.Client
	workers int
	now     func() time.Time
}

// Option configures a Sink.
type Option func(*Sink)

// WithWorkers bounds concurrent upserts; the store's throughput limits are
// respected by capping in-flight calls, not by pacing.
func WithWorkers(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock overrides the publish-time clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

// NewSink creates a snapshot sink over the given store.
func NewSink(store featurestore.Client, opts ...Option) *Sink {
	s := &Sink{store: store, workers: 8, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish attempts every snapshot once and returns the accounted report.
// The returned error is non-nil when the postcondition is violated (typed
// *IncompleteError) or the context was cancelled mid-batch; a cancelled
// batch may have published a prefix, which is safe to re-publish.
//
// An empty batch publishes nothing and succeeds trivially.
func (s *Sink) Publish(ctx context.Context, snaps []model.Snapshot) (Report, error) {
	report := Report{Expected: len(snaps)}
	if len(snaps) == 0 {
		return report, nil
	}

	log := logging.L(ctx)
	observedAt := s.now()

	var (
		succeeded  atomic.Int64
		failedMu   sync.Mutex
		failedKeys []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, snap := range snaps {
		g.Go(func() error {
			// A cancelled batch stops issuing new upserts; in-flight ones
			// finish on their own.
			if err := gctx.Err(); err != nil {
				return err
			}

			key := strconv.FormatInt(snap.AccountKey, 10)
			start := time.Now()
			err := s.store.Put(gctx, key, SnapshotFeatures(snap, observedAt))
			metrics.PublishDuration.Observe(time.Since(start).Seconds())

			if err != nil {
				metrics.PublishesTotal.WithLabelValues("failure").Inc()
				log.Warn("snapshot upsert failed", "account_key", key, "error", err)
				failedMu.Lock()
				failedKeys = append(failedKeys, key)
				failedMu.Unlock()
				return nil // accounted, not retried; keep attempting the rest
			}

			metrics.PublishesTotal.WithLabelValues("success").Inc()
			succeeded.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Strings(failedKeys)
	report.Succeeded = int(succeeded.Load())
	report.Failed = len(failedKeys)
	report.FailedKeys = failedKeys

	return report, report.Err()
}

// SnapshotFeatures renders a snapshot as the ordered feature list written to
// the store. All values are strings; the mean is fixed to the snapshot
// rounding precision and trans_time is the publish time in integer seconds.
func SnapshotFeatures(snap model.Snapshot, observedAt time.Time) []featurestore.Feature {
	return []featurestore.Feature{
		{Name: FeatureCountLong, Value: strconv.FormatInt(snap.CountLong, 10)},
		{Name: FeatureMeanLong, Value: strconv.FormatFloat(snap.MeanLong, 'f', model.MeanPrecision, 64)},
		{Name: FeatureTransTime, Value: strconv.FormatInt(observedAt.Unix(), 10)},
	}
}
