// Package model defines the record types flowing through the feature pipeline.
//
// A Transaction enters the pipeline, gains rolling window aggregates to
// become a WindowedRecord, gains ratio features to become a DerivedRecord,
// and the freshest DerivedRecord per account is projected into a Snapshot
// for the online feature store.
package model

import (
	"math"
	"time"
)

// MeanPrecision is the number of decimal places kept when a mean amount is
// published to the feature store. Precision is fixed here, not by the store:
// feature values travel as strings.
const MeanPrecision = 2

// Transaction is one immutable input record.
type Transaction struct {
	ID         string
	EventTime  time.Time
	AccountKey int64
	Amount     float64
	Label      string // empty = absent

	// Seq is the input-sequence position assigned by the source. It is the
	// deterministic tie-break when two records in a partition share an exact
	// EventTime.
	Seq int64
}

// Before reports whether t precedes o under the pipeline's total order
// (EventTime, then Seq).
func (t Transaction) Before(o Transaction) bool {
	if t.EventTime.Equal(o.EventTime) {
		return t.Seq < o.Seq
	}
	return t.EventTime.Before(o.EventTime)
}

// WindowedRecord is a Transaction enriched with rolling aggregates over the
// short and long horizons. Both windows include the record itself, so both
// counts are always >= 1 and CountShort <= CountLong.
type WindowedRecord struct {
	Transaction

	CountShort int64
	MeanShort  float64
	CountLong  int64
	MeanLong   float64
}

// DerivedRecord is a WindowedRecord enriched with dimensionless ratio
// features. When a denominator is exactly zero (impossible under the window
// invariants, defused anyway) the ratios hold zero sentinels and Undefined
// is set; non-finite values never leave the deriver.
type DerivedRecord struct {
	WindowedRecord

	RatioMeanShortOverLong  float64
	RatioAmountOverLong     float64
	RatioCountShortOverLong float64
	Undefined               bool
}

// Snapshot is the per-account projection published to the feature store.
// One snapshot exists per account key per run; the store keeps only the
// last write, with freshness governed by ObservedAt.
type Snapshot struct {
	AccountKey int64
	CountLong  int64
	MeanLong   float64 // rounded to MeanPrecision decimal places
	ObservedAt time.Time
}

// SnapshotOf projects a derived record into a Snapshot observed at the
// given publish time.
func SnapshotOf(r DerivedRecord, observedAt time.Time) Snapshot {
	return Snapshot{
		AccountKey: r.AccountKey,
		CountLong:  r.CountLong,
		MeanLong:   RoundMean(r.MeanLong),
		ObservedAt: observedAt,
	}
}

// RoundMean rounds a mean amount to MeanPrecision decimal places.
func RoundMean(v float64) float64 {
	return math.Round(v*100) / 100
}
