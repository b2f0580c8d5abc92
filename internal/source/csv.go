// Package source loads transaction batches for a pipeline pass.
package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/avolkov/featurepipe/internal/logging"
	"github.com/avolkov/featurepipe/internal/metrics"
	"github.com/avolkov/featurepipe/internal/model"
)

// Input rows are headerless CSV with exactly these fields in order.
const numFields = 5 // id, event_time, account_key, amount, label

// Timestamp layouts accepted for event_time. The second is the layout the
// upstream export produces.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// CSVSource reads transactions from a headerless delimited file.
// Malformed rows are dropped and accounted, never failing the batch; an
// unreadable file is fatal.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source reading from path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Load reads the whole file. It returns the parsed transactions with Seq
// assigned in file order, plus the count of dropped malformed rows.
func (s *CSVSource) Load(ctx context.Context) ([]model.Transaction, int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = f.Close() }()

	txs, dropped, err := Parse(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("read source %s: %w", s.path, err)
	}
	return txs, dropped, nil
}

// Parse reads headerless transaction CSV from r. Exported separately so
// tests and future sources (stdin, object storage) can share the decoder.
func Parse(ctx context.Context, r io.Reader) ([]model.Transaction, int64, error) {
	log := logging.L(ctx)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // row arity validated per record, not fatal

	var (
		txs     []model.Transaction
		seq     int64
		dropped int64
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken row (e.g. bare quote) is a malformed
			// record, not a batch failure.
			if _, ok := err.(*csv.ParseError); ok {
				dropped++
				metrics.RecordsDroppedTotal.Inc()
				continue
			}
			return nil, 0, err
		}

		tx, err := parseRow(row)
		if err != nil {
			dropped++
			metrics.RecordsDroppedTotal.Inc()
			log.Debug("dropping malformed record", "row", seq+dropped, "error", err)
			continue
		}

		tx.Seq = seq
		seq++
		txs = append(txs, tx)
		metrics.RecordsReadTotal.Inc()
	}

	return txs, dropped, nil
}

func parseRow(row []string) (model.Transaction, error) {
	if len(row) != numFields {
		return model.Transaction{}, fmt.Errorf("expected %d fields, got %d", numFields, len(row))
	}

	id := row[0]
	if id == "" {
		return model.Transaction{}, fmt.Errorf("empty id")
	}

	ts, err := parseTime(row[1])
	if err != nil {
		return model.Transaction{}, fmt.Errorf("event_time %q: %w", row[1], err)
	}

	key, err := strconv.ParseInt(row[2], 10, 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("account_key %q: %w", row[2], err)
	}

	amount, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("amount %q: %w", row[3], err)
	}
	if amount < 0 {
		return model.Transaction{}, fmt.Errorf("amount %q is negative", row[3])
	}

	return model.Transaction{
		ID:         id,
		EventTime:  ts,
		AccountKey: key,
		Amount:     amount,
		Label:      row[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
