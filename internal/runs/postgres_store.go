package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists the run audit trail in PostgreSQL. The
// pipeline_runs table is managed by the goose migrations under migrations/.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed run store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Begin(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, started_at, status)
		VALUES ($1, $2, $3)
	`, run.ID, run.StartedAt, string(run.Status))
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

func (s *PostgresStore) Finish(ctx context.Context, run *Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET finished_at       = $2,
		    status            = $3,
		    records_read      = $4,
		    records_dropped   = $5,
		    records_derived   = $6,
		    distinct_keys     = $7,
		    publish_succeeded = $8,
		    publish_failed    = $9,
		    error_message     = $10
		WHERE id = $1
	`,
		run.ID,
		run.FinishedAt,
		string(run.Status),
		run.RecordsRead,
		run.RecordsDropped,
		run.RecordsDerived,
		run.DistinctKeys,
		run.PublishSucceeded,
		run.PublishFailed,
		run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status,
		       records_read, records_dropped, records_derived, distinct_keys,
		       publish_succeeded, publish_failed, error_message
		FROM pipeline_runs
		WHERE id = $1
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status,
		       records_read, records_dropped, records_derived, distinct_keys,
		       publish_succeeded, publish_failed, error_message
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			continue
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run      Run
		finished sql.NullTime
		errMsg   sql.NullString
	)
	if err := sc.Scan(
		&run.ID,
		&run.StartedAt,
		&finished,
		&run.Status,
		&run.RecordsRead,
		&run.RecordsDropped,
		&run.RecordsDerived,
		&run.DistinctKeys,
		&run.PublishSucceeded,
		&run.PublishFailed,
		&errMsg,
	); err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	return &run, nil
}
