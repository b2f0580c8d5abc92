// Package bulk persists the full derived-feature stream for batch training
// consumers.
//
// The output is header-bearing CSV with overwrite-on-rerun semantics. Every
// backend stages the new output and commits it atomically, so an aborted run
// never leaves the previous durable output partially overwritten.
package bulk

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/avolkov/featurepipe/internal/model"
)

// Sink durably stores a finite derived-feature stream before returning.
type Sink interface {
	Write(ctx context.Context, recs []model.DerivedRecord) error
}

// header lists the output columns: the input schema followed by the derived
// fields, in stable order.
var header = []string{
	"id",
	"event_time",
	"account_key",
	"amount",
	"label",
	"count_short",
	"mean_short",
	"count_long",
	"mean_long",
	"ratio_mean_short_over_long",
	"ratio_amount_over_long",
	"ratio_count_short_over_long",
}

// Encode renders the stream as header-bearing CSV. Records flagged Undefined
// keep their input and window fields but carry empty ratio columns, so
// downstream training filters them as nulls without losing the row.
func Encode(recs []model.DerivedRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(header))
	for _, r := range recs {
		row[0] = r.ID
		row[1] = r.EventTime.Format(time.RFC3339)
		row[2] = strconv.FormatInt(r.AccountKey, 10)
		row[3] = formatFloat(r.Amount)
		row[4] = r.Label
		row[5] = strconv.FormatInt(r.CountShort, 10)
		row[6] = formatFloat(r.MeanShort)
		row[7] = strconv.FormatInt(r.CountLong, 10)
		row[8] = formatFloat(r.MeanLong)
		if r.Undefined {
			row[9], row[10], row[11] = "", "", ""
		} else {
			row[9] = formatFloat(r.RatioMeanShortOverLong)
			row[10] = formatFloat(r.RatioAmountOverLong)
			row[11] = formatFloat(r.RatioCountShortOverLong)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write record %s: %w", r.ID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
