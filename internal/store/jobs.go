package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = "id, project_id, status, progress, stage, message, settings_json, track_ids_json, image_ids_json, timeline_json, plan_json, result_ref, output_seconds, output_bytes, error_kind, error_message, cancel_requested, created_at, started_at, finished_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		statusStr    string
		stage        sql.NullString
		message      sql.NullString
		settings     sql.NullString
		trackIDs     sql.NullString
		imageIDs     sql.NullString
		timeline     sql.NullString
		plan         sql.NullString
		resultRef    sql.NullString
		outSeconds   sql.NullFloat64
		outBytes     sql.NullInt64
		errorKind    sql.NullString
		errorMessage sql.NullString
		cancelFlag   int64
		createdRaw   sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ProjectID,
		&statusStr,
		&job.Progress,
		&stage,
		&message,
		&settings,
		&trackIDs,
		&imageIDs,
		&timeline,
		&plan,
		&resultRef,
		&outSeconds,
		&outBytes,
		&errorKind,
		&errorMessage,
		&cancelFlag,
		&createdRaw,
		&startedRaw,
		&finishedRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	job.Status = JobStatus(statusStr)
	job.Stage = stage.String
	job.Message = message.String
	job.SettingsJSON = settings.String
	job.TrackIDs = decodeStrings(trackIDs.String)
	job.ImageIDs = decodeStrings(imageIDs.String)
	job.TimelineJSON = timeline.String
	job.PlanJSON = plan.String
	job.ResultRef = resultRef.String
	job.OutputSeconds = outSeconds.Float64
	job.OutputBytes = outBytes.Int64
	job.ErrorKind = errorKind.String
	job.ErrorMessage = errorMessage.String
	job.CancelRequested = cancelFlag != 0
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if startedRaw.Valid {
		job.StartedAt = parseOptionalTime(startedRaw.String)
	}
	if finishedRaw.Valid {
		job.FinishedAt = parseOptionalTime(finishedRaw.String)
	}
	return &job, nil
}

// CreateJob inserts a queued job. It returns ErrActiveJobExists when the
// project already has a queued or running job.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(job.ProjectID) == "" {
		return errors.New("job project id is required")
	}
	if job.ID == "" {
		job.ID = newID()
	}
	job.Status = JobQueued
	job.Progress = 0
	created := time.Now().UTC()
	job.CreatedAt = created
	job.UpdatedAt = created

	trackIDs, err := encodeStrings(job.TrackIDs)
	if err != nil {
		return fmt.Errorf("encode track ids: %w", err)
	}
	imageIDs, err := encodeStrings(job.ImageIDs)
	if err != nil {
		return fmt.Errorf("encode image ids: %w", err)
	}

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO jobs (
            id, project_id, status, progress, stage, message, settings_json,
            track_ids_json, image_ids_json, cancel_requested, created_at, updated_at
        ) VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID,
		job.ProjectID,
		JobQueued,
		nullableString(job.Stage),
		nullableString(job.Message),
		nullableString(job.SettingsJSON),
		trackIDs,
		imageIDs,
		formatTime(created),
		formatTime(created),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrActiveJobExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob fetches a job by identifier. Missing jobs return (nil, nil).
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ActiveJob returns the project's queued or running job, if any.
func (s *Store) ActiveJob(ctx context.Context, projectID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE project_id = ? AND status IN (?, ?) LIMIT 1`,
		projectID,
		JobQueued,
		JobRunning,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first. An empty projectID lists every project;
// statuses optionally filter the result.
func (s *Store) ListJobs(ctx context.Context, projectID string, statuses ...JobStatus) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var (
		clauses []string
		args    []any
	)
	if projectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, projectID)
	}
	if len(statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(statuses))+")")
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ClaimNextQueued moves the oldest queued job to running and returns it.
// It returns (nil, nil) when no job is waiting. Concurrent claimers never
// receive the same job.
func (s *Store) ClaimNextQueued(ctx context.Context) (*Job, error) {
	for {
		var id string
		err := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM jobs WHERE status = ? ORDER BY created_at, rowid LIMIT 1`,
			JobQueued,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("select queued job: %w", err)
		}

		timestamp := now()
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
			JobRunning,
			timestamp,
			timestamp,
			id,
			JobQueued,
		)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// Another worker or a cancel won the row; look again.
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			continue
		}
		return s.GetJob(ctx, id)
	}
}

// UpdateProgress records stage progress for a running job. Progress never
// decreases. The returned flag reports whether cancellation was requested.
func (s *Store) UpdateProgress(ctx context.Context, id, stage string, progress float64, message string) (bool, error) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET progress = MAX(progress, ?), stage = ?, message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		progress,
		nullableString(stage),
		nullableString(message),
		now(),
		id,
		JobRunning,
	); err != nil {
		return false, fmt.Errorf("update progress: %w", err)
	}
	return s.CancelRequested(ctx, id)
}

// RecordProgress raises a running job's progress without touching its stage
// or message. It never reports cancellation.
func (s *Store) RecordProgress(ctx context.Context, id string, progress float64) error {
	progress = max(0, min(100, progress))
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET progress = MAX(progress, ?), updated_at = ? WHERE id = ? AND status = ?`,
		progress,
		now(),
		id,
		JobRunning,
	); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// CancelRequested reports whether cancellation was requested for the job.
func (s *Store) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag int64
	err := s.db.QueryRowContext(ctx, `SELECT cancel_requested FROM jobs WHERE id = ?`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read cancel flag: %w", err)
	}
	return flag != 0, nil
}

// SaveSnapshot stores the timeline and distribution plan computed for a running job.
func (s *Store) SaveSnapshot(ctx context.Context, id, timelineJSON, planJSON string) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET timeline_json = COALESCE(?, timeline_json), plan_json = COALESCE(?, plan_json), updated_at = ?
         WHERE id = ?`,
		nullableString(timelineJSON),
		nullableString(planJSON),
		now(),
		id,
	); err != nil {
		return fmt.Errorf("save job snapshot: %w", err)
	}
	return nil
}

// RecordOutput stores the measured duration and size of a job's rendered
// video.
func (s *Store) RecordOutput(ctx context.Context, id string, seconds float64, bytes int64) error {
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET output_seconds = ?, output_bytes = ?, updated_at = ? WHERE id = ?`,
		seconds,
		bytes,
		now(),
		id,
	); err != nil {
		return fmt.Errorf("record job output: %w", err)
	}
	return nil
}

// RequestCancel cancels a queued job immediately or flags a running job for
// cancellation at its next checkpoint. Terminal jobs are left untouched. The
// job's state after the request is returned; a missing job returns (nil, nil).
func (s *Store) RequestCancel(ctx context.Context, id string) (*Job, error) {
	timestamp := now()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, cancel_requested = 1, message = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		JobCancelled,
		"Cancelled before start",
		timestamp,
		timestamp,
		id,
		JobQueued,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel queued job: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, err := s.execWithRetry(
			ctx,
			`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
			timestamp,
			id,
			JobRunning,
		); err != nil {
			return nil, fmt.Errorf("flag running job: %w", err)
		}
	}
	return s.GetJob(ctx, id)
}

// CompleteJob marks a running job succeeded with its output reference. It
// refuses (returning false) when the job is no longer running or cancellation
// was requested.
func (s *Store) CompleteJob(ctx context.Context, id, resultRef, message string) (bool, error) {
	timestamp := now()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, progress = 100, result_ref = ?, message = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND cancel_requested = 0`,
		JobSucceeded,
		resultRef,
		nullableString(message),
		timestamp,
		timestamp,
		id,
		JobRunning,
	)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// FailJob moves an active job to failed with an error classification.
func (s *Store) FailJob(ctx context.Context, id, kind, message string) error {
	timestamp := now()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, error_kind = ?, error_message = ?, message = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		JobFailed,
		nullableString(kind),
		message,
		message,
		timestamp,
		timestamp,
		id,
		JobQueued,
		JobRunning,
	); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// MarkCancelled moves an active job to cancelled.
func (s *Store) MarkCancelled(ctx context.Context, id, message string) error {
	timestamp := now()
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET status = ?, message = ?, finished_at = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		JobCancelled,
		nullableString(message),
		timestamp,
		timestamp,
		id,
		JobQueued,
		JobRunning,
	); err != nil {
		return fmt.Errorf("mark job cancelled: %w", err)
	}
	return nil
}
