package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, type, model_id, prompt, negative_prompt, width, height, seed, n,
	quality, style, source_image_path, mask_path, strength, cfg_scale, sample_steps,
	sampling_method, clip_skip, status, progress, error, created_at, updated_at,
	started_at, completed_at, heartbeat_at, model_loading_time_ms, generation_time_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j                                                Job
		seed, sampleSteps, clipSkip                      sql.NullInt64
		strength, cfgScale                               sql.NullFloat64
		startedAt, completedAt, heartbeatAt               sql.NullString
		modelLoadingMs, generationMs                      sql.NullInt64
		createdAt, updatedAt                              string
	)
	if err := row.Scan(
		&j.ID, &j.Type, &j.ModelID, &j.Prompt, &j.NegativePrompt, &j.Width, &j.Height,
		&seed, &j.N, &j.Quality, &j.Style, &j.SourceImagePath, &j.MaskPath,
		&strength, &cfgScale, &sampleSteps, &j.SamplingMethod, &clipSkip,
		&j.Status, &j.Progress, &j.Error, &createdAt, &updatedAt,
		&startedAt, &completedAt, &heartbeatAt, &modelLoadingMs, &generationMs,
	); err != nil {
		return nil, err
	}

	var err error
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if startedAt.Valid {
		if j.StartedAt, err = parseTimePtr(&startedAt.String); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
	}
	if completedAt.Valid {
		if j.CompletedAt, err = parseTimePtr(&completedAt.String); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
	}
	if heartbeatAt.Valid {
		if j.HeartbeatAt, err = parseTimePtr(&heartbeatAt.String); err != nil {
			return nil, fmt.Errorf("parse heartbeat_at: %w", err)
		}
	}
	if seed.Valid {
		v := seed.Int64
		j.Seed = &v
	}
	if strength.Valid {
		v := strength.Float64
		j.Strength = &v
	}
	if cfgScale.Valid {
		v := cfgScale.Float64
		j.CFGScale = &v
	}
	if sampleSteps.Valid {
		v := int(sampleSteps.Int64)
		j.SampleSteps = &v
	}
	if clipSkip.Valid {
		v := int(clipSkip.Int64)
		j.ClipSkip = &v
	}
	if modelLoadingMs.Valid {
		v := modelLoadingMs.Int64
		j.ModelLoadingTimeMs = &v
	}
	if generationMs.Valid {
		v := generationMs.Int64
		j.GenerationTimeMs = &v
	}
	return &j, nil
}

// Enqueue inserts a new job with status pending.
func (s *Store) Enqueue(ctx context.Context, j Job) (*Job, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	j.Status = StatusPending
	j.Progress = 0
	j.CreatedAt = now
	j.UpdatedAt = now
	if j.N == 0 {
		j.N = 1
	}

	_, err := s.execWithRetry(ctx, `INSERT INTO jobs (`+jobColumns+`) VALUES (
		?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		j.ID, j.Type, j.ModelID, j.Prompt, j.NegativePrompt, j.Width, j.Height,
		nullableInt64(j.Seed), j.N, j.Quality, j.Style, j.SourceImagePath, j.MaskPath,
		nullableFloat64(j.Strength), nullableFloat64(j.CFGScale), nullableInt(j.SampleSteps),
		j.SamplingMethod, nullableInt(j.ClipSkip),
		j.Status, j.Progress, j.Error, formatTime(j.CreatedAt), formatTime(j.UpdatedAt),
		formatTimePtr(j.StartedAt), formatTimePtr(j.CompletedAt), formatTimePtr(j.HeartbeatAt),
		nullableInt64(j.ModelLoadingTimeMs), nullableInt64(j.GenerationTimeMs),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return s.Get(ctx, j.ID)
}

// ClaimNextPending atomically selects the oldest pending job and transitions
// it to processing in one statement, guaranteeing at-most-one-claim even
// when multiple processor loops share this store (spec scenario S6).
func (s *Store) ClaimNextPending(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now().UTC())

	var job *Job
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			UPDATE jobs SET status = ?, updated_at = ?, started_at = ?, heartbeat_at = ?
			WHERE id = (
				SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1
			)
			RETURNING `+jobColumns,
			StatusProcessing, now, now, now, StatusPending,
		)
		j, scanErr := scanJob(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			job = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim next pending job: %w", err)
	}
	return job, nil
}

// Get fetches a job by id, including its generated images.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.queryRowWithRetry(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	images, err := s.ImagesForJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Images = images
	return job, nil
}

// List returns jobs matching filter, newest-first, plus the total count
// ignoring limit/offset.
func (s *Store) List(ctx context.Context, filter Filter) ([]*Job, int, error) {
	ctx = ensureContext(ctx)

	where := ""
	args := make([]any, 0, len(filter.Statuses))
	if len(filter.Statuses) > 0 {
		where = "WHERE status IN (" + placeholders(len(filter.Statuses)) + ")"
		for _, st := range filter.Statuses {
			args = append(args, st)
		}
	}

	var total int
	countQuery := "SELECT COUNT(1) FROM jobs " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + jobColumns + " FROM jobs " + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	queryArgs := append(append([]any{}, args...), limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// SetStatus transitions a job's status, stamping completed_at when terminal.
func (s *Store) SetStatus(ctx context.Context, id string, status Status, errMsg string) error {
	now := time.Now().UTC()
	var completedAt any
	if status == StatusCompleted || status == StatusFailed || status == StatusCancelled {
		completedAt = formatTime(now)
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ?, completed_at = COALESCE(completed_at, ?) WHERE id = ?`,
		status, errMsg, formatTime(now), completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// MarkStarted records that dispatch has begun and the model finished loading.
func (s *Store) MarkStarted(ctx context.Context, id string, modelLoadingMs int64) error {
	now := formatTime(time.Now().UTC())
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET model_loading_time_ms = ?, updated_at = ? WHERE id = ?`,
		modelLoadingMs, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark job started: %w", err)
	}
	return nil
}

// MarkCompleted finalizes a job's timing fields alongside its completed status.
func (s *Store) MarkCompleted(ctx context.Context, id string, generationMs int64) error {
	now := time.Now().UTC()
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, progress = 1.0, generation_time_ms = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		StatusCompleted, generationMs, formatTime(now), formatTime(now), id,
	)
	if err != nil {
		return fmt.Errorf("mark job completed: %w", err)
	}
	return nil
}

// SetProgress updates a job's progress fraction and heartbeat timestamp.
func (s *Store) SetProgress(ctx context.Context, id string, progress float64) error {
	now := formatTime(time.Now().UTC())
	_, err := s.execWithRetry(ctx,
		`UPDATE jobs SET progress = ?, heartbeat_at = ?, updated_at = ? WHERE id = ?`,
		progress, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("set job progress: %w", err)
	}
	return nil
}

// Cancel transitions a job from pending to cancelled. Returns false if the
// job was not pending (cancellation is only honored before dispatch).
func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, updated_at = ?, completed_at = ? WHERE id = ? AND status = ?`,
		StatusCancelled, now, now, id, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("cancel job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Delete removes a job and its generated images.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ReclaimStaleProcessing resets processing jobs whose heartbeat is older
// than cutoff back to pending, covering daemon-restart zombie recovery.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, updated_at = ?, started_at = NULL, heartbeat_at = NULL
		 WHERE status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		StatusPending, formatTime(time.Now().UTC()), StatusProcessing, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale processing: %w", err)
	}
	return res.RowsAffected()
}

// Health returns aggregate job counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("health query: %w", err)
	}
	defer rows.Close()

	var summary HealthSummary
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthSummary{}, err
		}
		summary.Total += count
		switch status {
		case StatusPending:
			summary.Pending = count
		case StatusProcessing:
			summary.Processing = count
		case StatusCompleted:
			summary.Completed = count
		case StatusFailed:
			summary.Failed = count
		case StatusCancelled:
			summary.Cancelled = count
		}
	}
	return summary, rows.Err()
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat64(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
