// Package runs records an audit trail of pipeline invocations.
//
// Each batch pass writes one row: when it started and finished, how many
// records it read, dropped, and derived, how many distinct account keys it
// saw, and the accounted publish results. The trail is how operators answer
// "did last night's run succeed, and how big was it" without log spelunking.
package runs

import (
	"context"
	"time"
)

// Status of a pipeline run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
	Status     Status    `json:"status"`

	RecordsRead    int64 `json:"recordsRead"`
	RecordsDropped int64 `json:"recordsDropped"`
	RecordsDerived int64 `json:"recordsDerived"`
	DistinctKeys   int64 `json:"distinctKeys"`

	PublishSucceeded int64 `json:"publishSucceeded"`
	PublishFailed    int64 `json:"publishFailed"`

	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Store persists the run audit trail.
type Store interface {
	// Begin records a run in the running state.
	Begin(ctx context.Context, run *Run) error

	// Finish records the terminal state and counts of a run.
	Finish(ctx context.Context, run *Run) error

	// Get returns a run by ID.
	Get(ctx context.Context, id string) (*Run, error)

	// ListRecent returns the most recently started runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]*Run, error)
}
