// Package derive computes ratio features from windowed records.
package derive

import "github.com/avolkov/featurepipe/internal/model"

// Apply is a pure, row-wise transform from WindowedRecord to DerivedRecord.
//
// The window invariants guarantee MeanLong > 0 and CountLong >= 1 for any
// well-formed input, but a zero denominator is still defused: the record is
// flagged Undefined and the affected ratios hold zero sentinels rather than
// a non-finite value. Flagged records are excluded from latest-state
// candidacy and nulled (but retained) in the bulk output.
func Apply(r model.WindowedRecord) model.DerivedRecord {
	d := model.DerivedRecord{WindowedRecord: r}

	if r.MeanLong == 0 {
		d.Undefined = true
	} else {
		d.RatioMeanShortOverLong = r.MeanShort / r.MeanLong
		d.RatioAmountOverLong = r.Amount / r.MeanLong
	}

	if r.CountLong == 0 {
		d.Undefined = true
	} else {
		d.RatioCountShortOverLong = float64(r.CountShort) / float64(r.CountLong)
	}

	return d
}

// All applies Apply to every record, preserving order and cardinality.
func All(recs []model.WindowedRecord) []model.DerivedRecord {
	out := make([]model.DerivedRecord, len(recs))
	for i, r := range recs {
		out[i] = Apply(r)
	}
	return out
}
