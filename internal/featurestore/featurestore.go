// Package featurestore defines the low-latency feature store collaborator
// and its client implementations.
//
// The store is a narrow external interface: an idempotent, last-writer-wins
// upsert of an ordered feature list keyed by stringified account key, and a
// point read used for post-publish validation. All feature values travel as
// strings; numeric precision is decided by the publisher, never the store.
package featurestore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("featurestore: record not found")

// Feature is one named feature value. Values are always strings on the wire.
type Feature struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Client is the feature store collaborator. Implementations must make Put
// an idempotent create-or-replace: re-publishing the same key is always safe.
type Client interface {
	// Put upserts the ordered feature list under key.
	Put(ctx context.Context, key string, features []Feature) error

	// Get returns the feature list stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]Feature, error)

	// Close releases any underlying connections.
	Close() error
}
