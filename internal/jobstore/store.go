// Package jobstore persists job and segment records in PostgreSQL. Every
// state transition is a conditional UPDATE so that concurrent writers and
// at-least-once task deliveries cannot corrupt terminal states: the first
// terminal write wins and later ones report not-applied.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Ruanpiscitelli/midiaapiv1/internal/domain"
)

// Store handles all database operations for jobs and segments
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// New creates a new Store instance
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a job and its segment records atomically
func (s *Store) CreateJob(ctx context.Context, job *domain.Job, segments []domain.Segment) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (job_id, status, segment_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, job.JobID, job.Status, job.SegmentCount, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	for _, seg := range segments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO segments (
				segment_id, job_id, ordinal, image_prompt, narration, voice,
				status, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, seg.SegmentID, seg.JobID, seg.Ordinal, seg.ImagePrompt, seg.Narration, seg.Voice,
			seg.Status, seg.CreatedAt, seg.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", seg.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job creation: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.Int("segments", len(segments)),
	)

	return nil
}

// GetJob retrieves a job by its ID
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := s.db.GetContext(ctx, &job, `
		SELECT job_id, status, segment_count,
		       COALESCE(artifact_key, '') AS artifact_key,
		       COALESCE(error_message, '') AS error_message,
		       created_at, updated_at, completed_at
		FROM jobs
		WHERE job_id = $1
	`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// GetSegments returns a job's segments in ordinal order
func (s *Store) GetSegments(ctx context.Context, jobID string) ([]domain.Segment, error) {
	var segments []domain.Segment
	err := s.db.SelectContext(ctx, &segments, `
		SELECT segment_id, job_id, ordinal, image_prompt, narration, voice, status,
		       COALESCE(image_key, '') AS image_key,
		       COALESCE(audio_key, '') AS audio_key,
		       COALESCE(error_message, '') AS error_message,
		       attempts, last_heartbeat_at, created_at, updated_at
		FROM segments
		WHERE job_id = $1
		ORDER BY ordinal ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get segments: %w", err)
	}

	return segments, nil
}

// StartSegment claims a segment for execution and returns the delivery
// attempt count including this one. It reports false when the segment is
// already terminal, which is how duplicate deliveries from the task
// substrate are detected.
func (s *Store) StartSegment(ctx context.Context, jobID string, ordinal int) (bool, int, error) {
	var attempts int
	err := s.db.QueryRowxContext(ctx, `
		UPDATE segments
		SET status = $1,
		    attempts = attempts + 1,
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2 AND ordinal = $3 AND status IN ($4, $1)
		RETURNING attempts
	`, domain.SegmentStatusRunning, jobID, ordinal, domain.SegmentStatusPending).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to start segment: %w", err)
	}

	return true, attempts, nil
}

// CompleteSegment writes a segment's terminal state. Media references are
// set exactly once, at the transition to succeeded. It reports false when
// the segment was already terminal (duplicate completion report).
func (s *Store) CompleteSegment(ctx context.Context, jobID string, ordinal int, res domain.SegmentResult) (bool, error) {
	var (
		result sql.Result
		err    error
	)

	if res.Succeeded {
		result, err = s.db.ExecContext(ctx, `
			UPDATE segments
			SET status = $1, image_key = $2, audio_key = $3, updated_at = NOW()
			WHERE job_id = $4 AND ordinal = $5 AND status IN ($6, $7)
		`, domain.SegmentStatusSucceeded, res.ImageKey, res.AudioKey,
			jobID, ordinal, domain.SegmentStatusPending, domain.SegmentStatusRunning)
	} else {
		result, err = s.db.ExecContext(ctx, `
			UPDATE segments
			SET status = $1, error_message = $2, updated_at = NOW()
			WHERE job_id = $3 AND ordinal = $4 AND status IN ($5, $6)
		`, domain.SegmentStatusFailed, res.ErrorMessage,
			jobID, ordinal, domain.SegmentStatusPending, domain.SegmentStatusRunning)
	}
	if err != nil {
		return false, fmt.Errorf("failed to complete segment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Warn("Duplicate completion report ignored",
			slog.String("job_id", jobID),
			slog.Int("ordinal", ordinal),
		)
		return false, nil
	}

	return true, nil
}

// MarkJobRunning moves a pending job to running; a no-op otherwise
func (s *Store) MarkJobRunning(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`, domain.JobStatusRunning, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	return nil
}

// ClaimFinalize moves a job into the composing state. Only one caller can
// win the transition, which guarantees finalize runs at most once per job;
// terminal and cancelled jobs are never claimed.
func (s *Store) ClaimFinalize(ctx context.Context, jobID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status IN ($3, $4)
	`, domain.JobStatusComposing, jobID, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to claim finalize: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// FinishJob writes the job's terminal state and artifact reference
func (s *Store) FinishJob(ctx context.Context, jobID, status, artifactKey, errorMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1,
		    artifact_key = NULLIF($2, ''),
		    error_message = NULLIF($3, ''),
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4
	`, status, artifactKey, errorMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	s.logger.Info("Job finished",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}

// CancelJob marks a pending or running job cancelled. It reports false when
// the job had already reached a terminal state.
func (s *Store) CancelJob(ctx context.Context, jobID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status IN ($3, $4)
	`, domain.JobStatusCancelled, jobID, domain.JobStatusPending, domain.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// UpdateSegmentHeartbeat refreshes the heartbeat timestamp of a running segment
func (s *Store) UpdateSegmentHeartbeat(ctx context.Context, jobID string, ordinal int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE segments
		SET last_heartbeat_at = NOW(), updated_at = NOW()
		WHERE job_id = $1 AND ordinal = $2 AND status = $3
	`, jobID, ordinal, domain.SegmentStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update segment heartbeat: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		s.logger.Warn("Segment heartbeat update - no rows affected (segment may not be running)",
			slog.String("job_id", jobID),
			slog.Int("ordinal", ordinal),
		)
	}

	return nil
}

// JobFilter narrows and paginates job listings
type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is an opaque keyset-pagination position
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns jobs newest-first with keyset pagination. One extra row
// beyond PageSize is returned when more results exist.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `
		SELECT job_id, status, segment_count,
		       COALESCE(artifact_key, '') AS artifact_key,
		       COALESCE(error_message, '') AS error_message,
		       created_at, updated_at, completed_at
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}
