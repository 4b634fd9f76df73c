// Package jobs persists batch runs and per-row resolved records to a local
// sqlite database, using database/sql + mattn/go-sqlite3 directly rather
// than an ORM, grounded on tadeyemo32-career26-vanguard's sqlite-backed
// persistence layer but simplified to plain SQL for this package's small,
// fixed schema.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/resolveco/resolveco/internal/model"
)

// Status is a job's position in its lifecycle, per spec §6.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	row_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	completed_at DATETIME,
	error_message TEXT
);

CREATE TABLE IF NOT EXISTS results (
	job_id TEXT NOT NULL,
	input_id TEXT NOT NULL,
	record_json TEXT NOT NULL,
	saved_at DATETIME NOT NULL,
	PRIMARY KEY (job_id, input_id)
);
`

// Store wraps a sqlite database holding the jobs table and the
// per-row ResolvedRecord results, implementing orchestrator.Store.
type Store struct {
	db *sql.DB
	// JobID scopes every SaveResult call saved through this Store to one
	// batch run; construct one Store per job (or call WithJob to reuse
	// the underlying connection across jobs).
	JobID string
}

// Open creates (or reuses) the sqlite database file at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// WithJob returns a Store bound to jobID, reusing the same underlying
// connection, so one Orchestrator run's SaveResult calls land under one
// job row.
func (s *Store) WithJob(jobID string) *Store {
	return &Store{db: s.db, JobID: jobID}
}

func (s *Store) Close() error { return s.db.Close() }

// CreateJob inserts a new job row in StatusPending.
func (s *Store) CreateJob(ctx context.Context, jobID string, rowCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, row_count, created_at) VALUES (?, ?, ?, ?)`,
		jobID, StatusPending, rowCount, time.Now().UTC(),
	)
	return err
}

// MarkProcessing transitions a job from pending to processing.
func (s *Store) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
		StatusProcessing, time.Now().UTC(), jobID,
	)
	return err
}

// MarkCompleted transitions a job to completed.
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?`,
		StatusCompleted, time.Now().UTC(), jobID,
	)
	return err
}

// MarkFailed transitions a job to failed, recording detail.
func (s *Store) MarkFailed(ctx context.Context, jobID, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, completed_at = ?, error_message = ? WHERE id = ?`,
		StatusFailed, time.Now().UTC(), detail, jobID,
	)
	return err
}

// JobRecord is a jobs-table row as read back.
type JobRecord struct {
	ID           string
	Status       Status
	RowCount     int
	CreatedAt    time.Time
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
	ErrorMessage sql.NullString
}

// GetJob reads back one job's bookkeeping row.
func (s *Store) GetJob(ctx context.Context, jobID string) (JobRecord, error) {
	var rec JobRecord
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, row_count, created_at, started_at, completed_at, error_message FROM jobs WHERE id = ?`,
		jobID,
	)
	err := row.Scan(&rec.ID, &rec.Status, &rec.RowCount, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt, &rec.ErrorMessage)
	return rec, err
}

// SaveResult implements orchestrator.Store: it persists one row's
// ResolvedRecord as JSON, keyed by (JobID, InputID), overwriting any
// prior save for the same row (a retry replaces, it does not duplicate).
func (s *Store) SaveResult(ctx context.Context, rec model.ResolvedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal resolved record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO results (job_id, input_id, record_json, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (job_id, input_id) DO UPDATE SET record_json = excluded.record_json, saved_at = excluded.saved_at`,
		s.JobID, rec.InputID, data, time.Now().UTC(),
	)
	return err
}

// LoadResults reads back every ResolvedRecord saved for a job.
func (s *Store) LoadResults(ctx context.Context, jobID string) ([]model.ResolvedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_json FROM results WHERE job_id = ? ORDER BY input_id`, jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ResolvedRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec model.ResolvedRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
