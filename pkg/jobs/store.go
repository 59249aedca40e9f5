// SPDX-FileCopyrightText: 2026 Framelift contributors.
//
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a job row does not exist.
var ErrNotFound = errors.New("job not found")

// Store is the narrow persistence surface the pipeline core needs.
type Store interface {
	// Create inserts a new job row. A missing id is generated.
	Create(ctx context.Context, job *Job) error
	// Get reads a job row by id.
	Get(ctx context.Context, id string) (*Job, error)
	// MarkStarted advances the job to processing and sets started_at once.
	MarkStarted(ctx context.Context, id string) error
	// UpdateStatus advances the job status. Updates that would move the
	// status backwards or out of a terminal state are silently dropped.
	UpdateStatus(ctx context.Context, id string, status Status) error
	// UpdateProgress persists a progress snapshot.
	UpdateProgress(ctx context.Context, id string, progress Progress) error
	// MarkCompleted sets the terminal completed state, the result, and
	// completed_at.
	MarkCompleted(ctx context.Context, id string, result *Result) error
	// MarkFailed sets the terminal failed state and the error message.
	MarkFailed(ctx context.Context, id string, errMsg string) error
	// UpsertFrameURL persists the remote URL of an uploaded frame.
	UpsertFrameURL(ctx context.Context, jobID, frameID, url string) error
}

// NewStore creates a postgres-backed job store.
func NewStore(db *sqlx.DB) Store {
	return &sqlStore{db: db}
}

type sqlStore struct {
	db *sqlx.DB
}

type jobRow struct {
	ID          string         `db:"id"`
	Status      string         `db:"status"`
	VideoURL    string         `db:"video_url"`
	Config      []byte         `db:"config"`
	Progress    []byte         `db:"progress"`
	Result      []byte         `db:"result"`
	Error       sql.NullString `db:"error"`
	CallbackURL sql.NullString `db:"callback_url"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	StartedAt   *time.Time     `db:"started_at"`
	CompletedAt *time.Time     `db:"completed_at"`
}

func (s *sqlStore) Create(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}

	var cfg []byte
	if job.Config != nil {
		raw, err := json.Marshal(job.Config)
		if err != nil {
			return fmt.Errorf("unable to marshal job config: %w", err)
		}
		cfg = raw
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, video_url, config, callback_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		job.ID, job.Status, job.VideoURL, cfg,
		sql.NullString{String: job.CallbackURL, Valid: job.CallbackURL != ""})
	if err != nil {
		return fmt.Errorf("unable to create job %s: %w", job.ID, err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, id string) (*Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, status, video_url, config, progress, result, error, callback_url,
		        created_at, updated_at, started_at, completed_at
		 FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read job %s: %w", id, err)
	}

	job := &Job{
		ID:          row.ID,
		Status:      Status(row.Status),
		VideoURL:    row.VideoURL,
		Error:       row.Error.String,
		CallbackURL: row.CallbackURL.String,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
	}
	if len(row.Config) > 0 {
		cfg, err := ParseConfig(row.Config)
		if err != nil {
			return nil, err
		}
		job.Config = cfg
	}
	if len(row.Progress) > 0 {
		progress := &Progress{}
		if err := json.Unmarshal(row.Progress, progress); err != nil {
			return nil, fmt.Errorf("unable to parse progress of job %s: %w", id, err)
		}
		job.Progress = progress
	}
	if len(row.Result) > 0 {
		result := &Result{}
		if err := json.Unmarshal(row.Result, result); err != nil {
			return nil, fmt.Errorf("unable to parse result of job %s: %w", id, err)
		}
		job.Result = result
	}
	return job, nil
}

func (s *sqlStore) MarkStarted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $2, started_at = COALESCE(started_at, NOW()), updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("unable to mark job %s started: %w", id, err)
	}
	return nil
}

func (s *sqlStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransition(status) {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, status)
	if err != nil {
		return fmt.Errorf("unable to update status of job %s: %w", id, err)
	}
	return nil
}

func (s *sqlStore) UpdateProgress(ctx context.Context, id string, progress Progress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("unable to marshal progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET progress = $2, updated_at = NOW() WHERE id = $1`,
		id, raw)
	if err != nil {
		return fmt.Errorf("unable to update progress of job %s: %w", id, err)
	}
	return nil
}

func (s *sqlStore) MarkCompleted(ctx context.Context, id string, result *Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("unable to marshal result: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $2, result = $3, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, StatusCompleted, raw)
	if err != nil {
		return fmt.Errorf("unable to mark job %s completed: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) MarkFailed(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $2, error = $3, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('completed', 'cancelled')`,
		id, StatusFailed, errMsg)
	if err != nil {
		return fmt.Errorf("unable to mark job %s failed: %w", id, err)
	}
	return nil
}

func (s *sqlStore) UpsertFrameURL(ctx context.Context, jobID, frameID, url string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_frames (job_id, frame_id, remote_url, created_at, updated_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (job_id, frame_id)
		 DO UPDATE SET remote_url = EXCLUDED.remote_url, updated_at = NOW()`,
		jobID, frameID, url)
	if err != nil {
		return fmt.Errorf("unable to persist frame %s of job %s: %w", frameID, jobID, err)
	}
	return nil
}
