package featurestore

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startJetStream runs an embedded NATS server with JetStream for the test.
func startJetStream(t *testing.T) string {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1, // random free port
		JetStream: true,
		StoreDir:  t.TempDir(),
	}
	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	ns.Start()
	t.Cleanup(ns.Shutdown)

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server did not become ready")
	}
	return ns.ClientURL()
}

func TestNATSStoreRoundTrip(t *testing.T) {
	url := startJetStream(t)

	store, err := NewNATSStore(url, "test-features")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	features := []Feature{
		{Name: "count_long", Value: "3"},
		{Name: "mean_long", Value: "230.38"},
		{Name: "trans_time", Value: "1773741600"},
	}
	require.NoError(t, store.Put(ctx, "4006080197832643", features))

	got, err := store.Get(ctx, "4006080197832643")
	require.NoError(t, err)
	assert.Equal(t, features, got)
}

func TestNATSStoreNotFound(t *testing.T) {
	url := startJetStream(t)

	store, err := NewNATSStore(url, "test-features")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNATSStoreOverwrite(t *testing.T) {
	url := startJetStream(t)

	store, err := NewNATSStore(url, "test-features")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "42", []Feature{{Name: "count_long", Value: "1"}}))
	require.NoError(t, store.Put(ctx, "42", []Feature{{Name: "count_long", Value: "2"}}))

	got, err := store.Get(ctx, "42")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].Value)
}

func TestNATSStoreBindsExistingBucket(t *testing.T) {
	url := startJetStream(t)

	first, err := NewNATSStore(url, "test-features")
	require.NoError(t, err)
	require.NoError(t, first.Put(context.Background(), "42", []Feature{{Name: "count_long", Value: "5"}}))
	require.NoError(t, first.Close())

	// A second client binds the bucket instead of recreating it.
	second, err := NewNATSStore(url, "test-features")
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	got, err := second.Get(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "5", got[0].Value)
}
