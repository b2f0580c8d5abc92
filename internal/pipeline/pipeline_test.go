package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/featurepipe/internal/bulk"
	"github.com/avolkov/featurepipe/internal/featurestore"
	"github.com/avolkov/featurepipe/internal/publish"
	"github.com/avolkov/featurepipe/internal/runs"
	"github.com/avolkov/featurepipe/internal/source"
	"github.com/avolkov/featurepipe/internal/window"
)

// failingStore rejects every upsert.
type failingStore struct{}

func (failingStore) Put(context.Context, string, []featurestore.Feature) error {
	return errors.New("store unavailable")
}
func (failingStore) Get(context.Context, string) ([]featurestore.Feature, error) {
	return nil, featurestore.ErrNotFound
}
func (failingStore) Close() error { return nil }

func writeSource(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txs.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644))
	return path
}

func newTestPipeline(t *testing.T, srcPath string, store featurestore.Client, bulkPath string) (*Pipeline, *runs.MemoryStore) {
	t.Helper()
	agg, err := window.New(window.DefaultConfig(), 4)
	require.NoError(t, err)

	runStore := runs.NewMemoryStore()
	p := New(source.NewCSVSource(srcPath), agg, store, bulk.NewFileSink(bulkPath), runStore, 4)
	return p, runStore
}

func TestRunEndToEnd(t *testing.T) {
	srcPath := writeSource(t,
		`tx-1,2026-03-14T10:00:00Z,42,10.00,0`,
		`tx-2,2026-03-14T10:05:00Z,42,20.00,0`,
		`tx-3,2026-03-14T10:15:00Z,42,30.00,1`,
		`tx-4,2026-03-14 11:00:00,7,16.78,0`,
		`not a valid row`,
	)
	bulkPath := filepath.Join(t.TempDir(), "derived.csv")
	store := featurestore.NewMemoryStore()
	p, runStore := newTestPipeline(t, srcPath, store, bulkPath)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.RecordsRead)
	assert.Equal(t, int64(1), result.RecordsDropped)
	assert.Equal(t, 4, result.RecordsDerived)
	assert.Equal(t, 2, result.DistinctKeys)
	assert.True(t, result.Publish.Complete())

	// The store holds exactly one snapshot per account, built from the
	// freshest record: for key 42 that is tx-3 with count_long=3, mean=20.
	features, err := store.Get(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, features, 3)
	assert.Equal(t, publish.FeatureCountLong, features[0].Name)
	assert.Equal(t, "3", features[0].Value)
	assert.Equal(t, publish.FeatureMeanLong, features[1].Name)
	assert.Equal(t, "20.00", features[1].Value)

	features, err = store.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "1", features[0].Value)
	assert.Equal(t, "16.78", features[1].Value)

	// Bulk output carries every derived row, including those that lost the
	// latest-state race.
	f, err := os.Open(bulkPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 5, "header plus four records")

	// The audit trail recorded the pass.
	recent, err := runStore.ListRecent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	run := recent[0]
	assert.Equal(t, result.RunID, run.ID)
	assert.Equal(t, runs.StatusSucceeded, run.Status)
	assert.Equal(t, int64(4), run.RecordsRead)
	assert.Equal(t, int64(1), run.RecordsDropped)
	assert.Equal(t, int64(2), run.PublishSucceeded)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestRunEmptySourceSucceeds(t *testing.T) {
	srcPath := writeSource(t, "")
	bulkPath := filepath.Join(t.TempDir(), "derived.csv")
	p, _ := newTestPipeline(t, srcPath, featurestore.NewMemoryStore(), bulkPath)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.RecordsRead)
	assert.Zero(t, result.DistinctKeys)
	assert.True(t, result.Publish.Complete(), "zero keys publish trivially")

	// The bulk sink still commits a header-only file.
	data, err := os.ReadFile(bulkPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "account_key")
}

func TestRunMissingSourceFails(t *testing.T) {
	bulkPath := filepath.Join(t.TempDir(), "derived.csv")
	p, runStore := newTestPipeline(t, filepath.Join(t.TempDir(), "nope.csv"),
		featurestore.NewMemoryStore(), bulkPath)

	result, err := p.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, result)

	recent, listErr := runStore.ListRecent(context.Background(), 1)
	require.NoError(t, listErr)
	require.Len(t, recent, 1)
	assert.Equal(t, runs.StatusFailed, recent[0].Status)
	assert.NotEmpty(t, recent[0].ErrorMessage)
}

func TestRunPublishFailureFailsRun(t *testing.T) {
	srcPath := writeSource(t,
		`tx-1,2026-03-14T10:00:00Z,42,10.00,0`,
		`tx-2,2026-03-14T10:05:00Z,7,20.00,0`,
	)
	bulkPath := filepath.Join(t.TempDir(), "derived.csv")
	p, runStore := newTestPipeline(t, srcPath, failingStore{}, bulkPath)

	result, err := p.Run(context.Background())

	var incomplete *publish.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, 2, incomplete.Report.Expected)
	assert.Zero(t, incomplete.Report.Succeeded)
	assert.Equal(t, []string{"42", "7"}, incomplete.Report.FailedKeys)

	recent, listErr := runStore.ListRecent(context.Background(), 1)
	require.NoError(t, listErr)
	require.Len(t, recent, 1)
	assert.Equal(t, runs.StatusFailed, recent[0].Status)
	assert.Equal(t, int64(2), recent[0].PublishFailed)

	// Publishing failed but the run is replayable: nothing was half-written.
	assert.NotNil(t, result)
}

func TestRunIdempotentRepublish(t *testing.T) {
	srcPath := writeSource(t,
		`tx-1,2026-03-14T10:00:00Z,42,10.00,0`,
		`tx-2,2026-03-14T10:05:00Z,42,20.00,0`,
	)
	bulkPath := filepath.Join(t.TempDir(), "derived.csv")
	store := featurestore.NewMemoryStore()
	p, _ := newTestPipeline(t, srcPath, store, bulkPath)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	first, err := store.Get(context.Background(), "42")
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	second, err := store.Get(context.Background(), "42")
	require.NoError(t, err)

	// trans_time may differ between runs; the feature values must not.
	assert.Equal(t, first[0], second[0])
	assert.Equal(t, first[1], second[1])
	assert.Equal(t, 1, store.Len())
}

func TestRunResultsIndependentOfInputOrder(t *testing.T) {
	rows := []string{
		`tx-1,2026-03-14T10:00:00Z,42,10.00,0`,
		`tx-2,2026-03-14T10:05:00Z,42,20.00,0`,
		`tx-3,2026-03-14T10:15:00Z,42,30.00,0`,
	}
	reversed := []string{rows[2], rows[1], rows[0]}

	get := func(input []string) []featurestore.Feature {
		store := featurestore.NewMemoryStore()
		bulkPath := filepath.Join(t.TempDir(), fmt.Sprintf("derived-%p.csv", &input))
		p, _ := newTestPipeline(t, writeSource(t, input...), store, bulkPath)
		_, err := p.Run(context.Background())
		require.NoError(t, err)
		features, err := store.Get(context.Background(), "42")
		require.NoError(t, err)
		return features
	}

	a, b := get(rows), get(reversed)
	assert.Equal(t, a[0], b[0], "count_long agrees across input orders")
	assert.Equal(t, a[1], b[1], "mean_long agrees across input orders")
}
