package runs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/featurepipe/internal/runs"
	"github.com/avolkov/featurepipe/internal/testutil"
)

func TestPostgresStoreIntegration(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	s := runs.NewPostgresStore(db)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Microsecond)

	run := &runs.Run{ID: "it-run-1", StartedAt: started, Status: runs.StatusRunning}
	require.NoError(t, s.Begin(ctx, run))

	got, err := s.Get(ctx, "it-run-1")
	require.NoError(t, err)
	assert.Equal(t, runs.StatusRunning, got.Status)
	assert.True(t, got.FinishedAt.IsZero())

	run.FinishedAt = started.Add(time.Minute)
	run.Status = runs.StatusFailed
	run.RecordsRead = 1000
	run.RecordsDropped = 3
	run.RecordsDerived = 997
	run.DistinctKeys = 42
	run.PublishSucceeded = 40
	run.PublishFailed = 2
	run.ErrorMessage = "publish incomplete: 40/42 snapshots acknowledged, 2 failed"
	require.NoError(t, s.Finish(ctx, run))

	got, err = s.Get(ctx, "it-run-1")
	require.NoError(t, err)
	assert.Equal(t, runs.StatusFailed, got.Status)
	assert.Equal(t, int64(40), got.PublishSucceeded)
	assert.Equal(t, int64(2), got.PublishFailed)
	assert.Contains(t, got.ErrorMessage, "40/42")

	recent, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, "it-run-1", recent[0].ID)
}
