package featurestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSStore is a Client backed by a NATS JetStream key-value bucket. Each
// record is one KV entry: the stringified account key maps to the
// JSON-encoded ordered feature list. JetStream KV puts are last-writer-wins,
// which matches the snapshot overwrite contract.
type NATSStore struct {
	nc *nats.Conn
	kv nats.KeyValue
}

// NewNATSStore connects to NATS and binds the key-value bucket, creating it
// if it does not exist yet.
func NewNATSStore(url, bucket string) (*NATSStore, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "latest per-account feature snapshots",
			History:     1, // only the freshest snapshot matters
		})
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("binding KV bucket %s: %w", bucket, err)
	}

	return &NATSStore{nc: nc, kv: kv}, nil
}

// Put upserts the feature list under key.
func (s *NATSStore) Put(ctx context.Context, key string, features []Feature) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	if _, err := s.kv.Put(key, data); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

// Get returns the feature list stored under key, or ErrNotFound.
func (s *NATSStore) Get(ctx context.Context, key string) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(key)
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", key, err)
	}
	var features []Feature
	if err := json.Unmarshal(entry.Value(), &features); err != nil {
		return nil, fmt.Errorf("decode features for %s: %w", key, err)
	}
	return features, nil
}

// Close drains the NATS connection.
func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
