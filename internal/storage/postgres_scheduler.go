package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/pkg/models"
)

type pgScheduledJobStore struct {
	db *sql.DB
}

func (s *pgScheduledJobStore) Create(ctx context.Context, job *models.ScheduledJob) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs
			(id, user_id, workflow_id, job_type, check_config, interval_seconds, max_attempts, max_runs,
			 attempts, runs_completed, consecutive_failures, expires_at, status, next_run_at,
			 on_success_message, on_failure_message, on_complete,
			 platform, platform_channel_id, platform_thread_id, created_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		job.ID, job.UserID, job.WorkflowID, string(job.JobType), []byte(job.CheckConfig),
		job.IntervalSeconds, job.MaxAttempts, job.MaxRuns, job.Attempts, job.RunsCompleted,
		job.ConsecutiveFailures, job.ExpiresAt, string(job.Status), job.NextRunAt,
		job.OnSuccessMessage, job.OnFailureMessage, string(job.OnComplete),
		job.Platform, job.PlatformChannelID, job.PlatformThreadID, job.CreatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("create scheduled job: %w", err)
	}
	return nil
}

func (s *pgScheduledJobStore) Get(ctx context.Context, id string) (*models.ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+` FROM scheduled_jobs WHERE id = $1`, id)
	return scanScheduledJob(row)
}

func (s *pgScheduledJobStore) Update(ctx context.Context, job *models.ScheduledJob) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_jobs
		SET attempts = $2, runs_completed = $3, consecutive_failures = $4, status = $5,
		    next_run_at = $6, completed_at = $7
		WHERE id = $1`,
		job.ID, job.Attempts, job.RunsCompleted, job.ConsecutiveFailures, string(job.Status),
		job.NextRunAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update scheduled job: %w", err)
	}
	return nil
}

// ClaimDue selects due active jobs and bumps their attempt counter in the
// same statement, using a conditional UPDATE ... RETURNING so concurrent
// scheduler replicas racing on the same row never both win the claim.
func (s *pgScheduledJobStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE scheduled_jobs
		SET attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM scheduled_jobs
			WHERE status = 'active' AND next_run_at <= $1
			ORDER BY next_run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.ScheduledJob
	for rows.Next() {
		job, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

const jobColumns = `id, user_id, workflow_id, job_type, check_config, interval_seconds, max_attempts, max_runs,
		attempts, runs_completed, consecutive_failures, expires_at, status, next_run_at,
		on_success_message, on_failure_message, on_complete,
		platform, platform_channel_id, platform_thread_id, created_at, completed_at`

const jobSelectColumns = `SELECT ` + jobColumns

type jobScanner interface {
	Scan(dest ...any) error
}

func scanScheduledJob(row jobScanner) (*models.ScheduledJob, error) {
	var j models.ScheduledJob
	var jobType, status, onComplete string
	var checkConfig []byte
	if err := row.Scan(
		&j.ID, &j.UserID, &j.WorkflowID, &jobType, &checkConfig, &j.IntervalSeconds, &j.MaxAttempts, &j.MaxRuns,
		&j.Attempts, &j.RunsCompleted, &j.ConsecutiveFailures, &j.ExpiresAt, &status, &j.NextRunAt,
		&j.OnSuccessMessage, &j.OnFailureMessage, &onComplete,
		&j.Platform, &j.PlatformChannelID, &j.PlatformThreadID, &j.CreatedAt, &j.CompletedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan scheduled job: %w", err)
	}
	j.JobType = models.JobType(jobType)
	j.Status = models.JobStatus(status)
	j.OnComplete = models.JobCompletionAction(onComplete)
	j.CheckConfig = checkConfig
	return &j, nil
}

type pgScheduledWorkflowStore struct {
	db *sql.DB
}

func (s *pgScheduledWorkflowStore) Get(ctx context.Context, id string) (*models.ScheduledWorkflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, status, created_at, completed_at
		FROM scheduled_workflows WHERE id = $1`, id)

	var wf models.ScheduledWorkflow
	var status string
	if err := row.Scan(&wf.ID, &wf.UserID, &wf.Name, &status, &wf.CreatedAt, &wf.CompletedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get scheduled workflow: %w", err)
	}
	wf.Status = models.JobStatus(status)
	return &wf, nil
}

func (s *pgScheduledWorkflowStore) Update(ctx context.Context, wf *models.ScheduledWorkflow) error {
	if wf == nil {
		return fmt.Errorf("workflow is required")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_workflows SET status = $2, completed_at = $3 WHERE id = $1`,
		wf.ID, string(wf.Status), wf.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update scheduled workflow: %w", err)
	}
	return nil
}

func (s *pgScheduledWorkflowStore) AllJobsTerminal(ctx context.Context, workflowID string) (bool, error) {
	var activeCount int
	row := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM scheduled_jobs WHERE workflow_id = $1 AND status = 'active'`, workflowID)
	if err := row.Scan(&activeCount); err != nil {
		return false, fmt.Errorf("count active workflow jobs: %w", err)
	}
	return activeCount == 0, nil
}
