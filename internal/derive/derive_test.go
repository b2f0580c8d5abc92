package derive

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/featurepipe/internal/model"
)

func windowed(amount, meanShort, meanLong float64, countShort, countLong int64) model.WindowedRecord {
	return model.WindowedRecord{
		Transaction: model.Transaction{
			ID:         "tx-1",
			EventTime:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
			AccountKey: 42,
			Amount:     amount,
		},
		CountShort: countShort,
		MeanShort:  meanShort,
		CountLong:  countLong,
		MeanLong:   meanLong,
	}
}

func TestApplyRatios(t *testing.T) {
	d := Apply(windowed(30, 25, 20, 2, 3))

	require.False(t, d.Undefined)
	assert.InDelta(t, 25.0/20.0, d.RatioMeanShortOverLong, 1e-12)
	assert.InDelta(t, 30.0/20.0, d.RatioAmountOverLong, 1e-12)
	assert.InDelta(t, 2.0/3.0, d.RatioCountShortOverLong, 1e-12)
}

func TestApplyPreservesWindowedFields(t *testing.T) {
	w := windowed(30, 25, 20, 2, 3)
	d := Apply(w)
	assert.Equal(t, w, d.WindowedRecord)
}

func TestApplySingleRecordWindow(t *testing.T) {
	// A record alone in both windows: every ratio is exactly 1.
	d := Apply(windowed(42.5, 42.5, 42.5, 1, 1))

	require.False(t, d.Undefined)
	assert.Equal(t, 1.0, d.RatioMeanShortOverLong)
	assert.Equal(t, 1.0, d.RatioAmountOverLong)
	assert.Equal(t, 1.0, d.RatioCountShortOverLong)
}

func TestApplyZeroMeanDefused(t *testing.T) {
	// All-zero amounts make MeanLong zero. The ratios must come out as
	// finite sentinels with the record flagged, never NaN or Inf.
	d := Apply(windowed(0, 0, 0, 2, 3))

	assert.True(t, d.Undefined)
	assert.Equal(t, 0.0, d.RatioMeanShortOverLong)
	assert.Equal(t, 0.0, d.RatioAmountOverLong)
	assert.False(t, math.IsNaN(d.RatioCountShortOverLong))
	assert.False(t, math.IsInf(d.RatioCountShortOverLong, 0))
}

func TestApplyZeroCountDefused(t *testing.T) {
	d := Apply(windowed(10, 10, 10, 0, 0))

	assert.True(t, d.Undefined)
	assert.Equal(t, 0.0, d.RatioCountShortOverLong)
}

func TestAllPreservesOrderAndCardinality(t *testing.T) {
	in := []model.WindowedRecord{
		windowed(10, 10, 10, 1, 1),
		windowed(20, 15, 15, 2, 2),
		windowed(30, 25, 20, 2, 3),
	}
	out := All(in)

	require.Len(t, out, len(in))
	for i := range in {
		assert.Equal(t, in[i], out[i].WindowedRecord, "record %d", i)
	}
}
