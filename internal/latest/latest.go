// Package latest reduces a derived-feature stream to the single most recent
// record per account key.
//
// The reduction maintains one best-seen record per key under the total order
// (event time, input sequence), so it holds O(distinct keys) state and is
// idempotent: re-running it over the same stream yields the same result. Two
// partial reductions merge with a commutative keep-the-later combiner, which
// lets callers reduce shards in parallel.
package latest

import (
	"sort"

	"github.com/avolkov/featurepipe/internal/model"
)

// Extractor accumulates the best-seen record per account key.
type Extractor struct {
	best map[int64]model.DerivedRecord
}

// New creates an empty Extractor.
func New() *Extractor {
	return &Extractor{best: make(map[int64]model.DerivedRecord)}
}

// Observe considers one record. Records flagged Undefined carry a defused
// zero-denominator ratio and are never snapshot candidates.
func (e *Extractor) Observe(r model.DerivedRecord) {
	if r.Undefined {
		return
	}
	cur, ok := e.best[r.AccountKey]
	if !ok || cur.Transaction.Before(r.Transaction) {
		e.best[r.AccountKey] = r
	}
}

// ObserveAll considers every record in the slice.
func (e *Extractor) ObserveAll(recs []model.DerivedRecord) {
	for _, r := range recs {
		e.Observe(r)
	}
}

// Merge folds another partial reduction into this one. Merge is commutative:
// for each key the later record wins regardless of merge order.
func (e *Extractor) Merge(other *Extractor) {
	for _, r := range other.best {
		e.Observe(r)
	}
}

// Len returns the number of distinct account keys seen so far.
func (e *Extractor) Len() int {
	return len(e.best)
}

// Records returns the selected record per key, ordered by account key for
// deterministic output.
func (e *Extractor) Records() []model.DerivedRecord {
	out := make([]model.DerivedRecord, 0, len(e.best))
	for _, r := range e.best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountKey < out[j].AccountKey })
	return out
}

// Extract is the one-shot form: reduce the whole stream in a single pass.
func Extract(recs []model.DerivedRecord) []model.DerivedRecord {
	e := New()
	e.ObserveAll(recs)
	return e.Records()
}
