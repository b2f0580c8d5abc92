// Package window computes causal rolling aggregates over per-account
// transaction histories.
//
// Records are partitioned by account key and ordered by (event time, input
// sequence). For each record, two windows are evaluated: a short horizon
// (default 10 minutes) and a long horizon (default 1 week), both bounds
// inclusive, [t-h, t], so every record is a member of its own windows.
// Because the upper edge only ever advances, each horizon is maintained with
// a trailing lower-edge pointer and a running sum, giving O(1) amortized
// count/mean per record.
package window

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avolkov/featurepipe/internal/model"
)

// Default horizons.
const (
	DefaultShort = 10 * time.Minute
	DefaultLong  = 7 * 24 * time.Hour
)

// Config holds the two lookback horizons.
type Config struct {
	Short time.Duration
	Long  time.Duration
}

// DefaultConfig returns the standard 10-minute / 1-week horizon pair.
func DefaultConfig() Config {
	return Config{Short: DefaultShort, Long: DefaultLong}
}

// Validate checks that both horizons are positive and the short horizon is
// strictly inside the long one. The CountShort <= CountLong invariant holds
// only under this containment.
func (c Config) Validate() error {
	if c.Short <= 0 {
		return fmt.Errorf("short horizon must be positive, got %s", c.Short)
	}
	if c.Long <= 0 {
		return fmt.Errorf("long horizon must be positive, got %s", c.Long)
	}
	if c.Short >= c.Long {
		return fmt.Errorf("short horizon %s must be less than long horizon %s", c.Short, c.Long)
	}
	return nil
}

// Aggregator computes windowed records for batches of transactions.
type Aggregator struct {
	cfg     Config
	workers int
}

// New creates an Aggregator. workers bounds how many account partitions are
// processed concurrently; values below 1 are treated as 1.
func New(cfg Config, workers int) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	return &Aggregator{cfg: cfg, workers: workers}, nil
}

// Aggregate produces exactly one WindowedRecord per input transaction.
// Partitions are independent and processed concurrently; within a partition
// processing is strictly sequential. Output is ordered by (account key,
// event time, sequence) so downstream consumers see a deterministic stream.
func (a *Aggregator) Aggregate(ctx context.Context, txs []model.Transaction) ([]model.WindowedRecord, error) {
	if len(txs) == 0 {
		return nil, nil
	}

	partitions := partition(txs)
	keys := make([]int64, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	results := make([][]model.WindowedRecord, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, k := range keys {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = aggregatePartition(partitions[k], a.cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]model.WindowedRecord, 0, len(txs))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// partition groups transactions by account key, preserving input order
// within each group.
func partition(txs []model.Transaction) map[int64][]model.Transaction {
	parts := make(map[int64][]model.Transaction)
	for _, tx := range txs {
		parts[tx.AccountKey] = append(parts[tx.AccountKey], tx)
	}
	return parts
}

// horizonEdge tracks the trailing edge of one rolling window: the index of
// the oldest in-window record and the running sum of in-window amounts.
type horizonEdge struct {
	lo  int
	sum float64
}

// advance moves the lower edge forward until every remaining record falls
// inside [bound, t], then returns the in-window count and sum after
// admitting txs[hi].
func (e *horizonEdge) advance(txs []model.Transaction, hi int, bound time.Time) (int64, float64) {
	e.sum += txs[hi].Amount
	for txs[e.lo].EventTime.Before(bound) {
		e.sum -= txs[e.lo].Amount
		e.lo++
	}
	return int64(hi - e.lo + 1), e.sum
}

// aggregatePartition computes both rolling aggregates for a single account
// partition. The partition is sorted in place by (event time, sequence); the
// two horizons carry independent edges because they evict at different rates.
func aggregatePartition(txs []model.Transaction, cfg Config) []model.WindowedRecord {
	sort.Slice(txs, func(i, j int) bool { return txs[i].Before(txs[j]) })

	out := make([]model.WindowedRecord, len(txs))
	var short, long horizonEdge
	for i, tx := range txs {
		countShort, sumShort := short.advance(txs, i, tx.EventTime.Add(-cfg.Short))
		countLong, sumLong := long.advance(txs, i, tx.EventTime.Add(-cfg.Long))

		out[i] = model.WindowedRecord{
			Transaction: tx,
			CountShort:  countShort,
			MeanShort:   sumShort / float64(countShort),
			CountLong:   countLong,
			MeanLong:    sumLong / float64(countLong),
		}
	}
	return out
}
