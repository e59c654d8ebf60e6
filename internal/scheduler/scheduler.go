// Package scheduler runs the durable background job worker: a tick loop
// that claims due ScheduledJobs, executes their check per job type, and
// publishes a Notification on success/failure/expiry.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/relaycore/assistant-core/internal/bus"
	"github.com/relaycore/assistant-core/internal/errorlog"
	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/svcauth"
	"github.com/relaycore/assistant-core/internal/toolregistry"
	"github.com/relaycore/assistant-core/pkg/models"
)

// Config tunes the tick loop.
type Config struct {
	// TickInterval is how often the worker polls for due jobs. Default: 15s.
	TickInterval time.Duration
	// ClaimBatch bounds how many due jobs one tick claims. Default: 50.
	ClaimBatch int
	// MaxConcurrency bounds how many claimed jobs execute at once. Default: 10.
	MaxConcurrency int
}

func sanitizeConfig(cfg Config) Config {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 15 * time.Second
	}
	if cfg.ClaimBatch <= 0 {
		cfg.ClaimBatch = 50
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 10
	}
	return cfg
}

// Deps bundles the scheduler worker's collaborators.
type Deps struct {
	Jobs      JobStore
	Workflows WorkflowStore // nil disables workflow-completion propagation
	Tools     *toolregistry.Registry
	Bus       bus.Bus
	Auth      *svcauth.Service
	ErrorLogs *errorlog.Service
	Resumer   Resumer // nil disables on_complete=resume_conversation
	HTTP      *http.Client
	Metrics   *observability.Metrics // nil disables tick instrumentation
}

// JobStore is the subset of storage.ScheduledJobStore the worker needs,
// named locally so tests can supply a narrower fake.
type JobStore interface {
	Update(ctx context.Context, job *models.ScheduledJob) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledJob, error)
}

// WorkflowStore is the subset of storage.ScheduledWorkflowStore needed to
// propagate a job's terminal completion to its owning workflow.
type WorkflowStore interface {
	Get(ctx context.Context, id string) (*models.ScheduledWorkflow, error)
	Update(ctx context.Context, wf *models.ScheduledWorkflow) error
	AllJobsTerminal(ctx context.Context, workflowID string) (bool, error)
}

// Resumer re-enters the orchestrator's ingress path on behalf of a
// completed job whose on_complete action is resume_conversation.
type Resumer interface {
	Resume(ctx context.Context, job *models.ScheduledJob) error
}

// Worker runs the scheduler tick loop.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	sem    chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a scheduler Worker.
func New(deps Deps, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.HTTP == nil {
		deps.HTTP = http.DefaultClient
	}
	cfg = sanitizeConfig(cfg)
	return &Worker{deps: deps, cfg: cfg, logger: logger, sem: make(chan struct{}, cfg.MaxConcurrency)}
}

// Run blocks, ticking until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	defer cancel()

	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// Stop cancels the run loop; callers should still wait for Run to return.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Worker) tick(ctx context.Context) {
	now := time.Now()
	jobs, err := w.deps.Jobs.ClaimDue(ctx, now, w.cfg.ClaimBatch)
	if err != nil {
		w.logger.Error("claim due jobs failed", "error", err)
		return
	}
	for _, job := range jobs {
		job := job
		w.sem <- struct{}{}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.runJob(ctx, job, now)
		}()
	}
}

// runJob advances one claimed job by exactly one attempt: run its check,
// then apply the success/failure/expiry transition spelled out per job
// type, publishing a Notification when the job's routing calls for one.
func (w *Worker) runJob(ctx context.Context, job *models.ScheduledJob, now time.Time) {
	if job.ExpiresAt != nil && !job.ExpiresAt.After(now) {
		w.expireJob(ctx, job, now)
		return
	}

	// ClaimDue has already counted this attempt.
	success, checkErr := w.runCheck(ctx, job)

	if success {
		w.completeSuccess(ctx, job, now)
		return
	}

	job.ConsecutiveFailures++
	if checkErr != nil && w.deps.ErrorLogs != nil {
		w.deps.ErrorLogs.Record(ctx, errorlog.Entry{
			Service: "scheduler", Category: models.ErrorToolExecution,
			ToolName: string(job.JobType), Message: checkErr.Error(),
		})
	}

	if job.Attempts >= job.MaxAttempts {
		job.Status = models.JobStatusFailed
		job.CompletedAt = &now
		w.publishIfRouted(ctx, job, job.OnFailureMessage)
		w.recordOutcome(job, "failure")
	} else {
		job.NextRunAt = nextRunAt(job, now)
	}

	if err := w.deps.Jobs.Update(ctx, job); err != nil {
		w.logger.Error("update job after failed check failed", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) expireJob(ctx context.Context, job *models.ScheduledJob, now time.Time) {
	job.Status = models.JobStatusExpired
	job.CompletedAt = &now
	w.publishIfRouted(ctx, job, job.OnFailureMessage)
	if err := w.deps.Jobs.Update(ctx, job); err != nil {
		w.logger.Error("update expired job failed", "job_id", job.ID, "error", err)
	}
	w.recordOutcome(job, "expired")
}

func (w *Worker) completeSuccess(ctx context.Context, job *models.ScheduledJob, now time.Time) {
	w.publishIfRouted(ctx, job, job.OnSuccessMessage)
	w.recordOutcome(job, "success")

	terminal := job.OneShot()
	if terminal {
		job.Status = models.JobStatusCompleted
		job.CompletedAt = &now
	} else {
		job.RunsCompleted++
		job.ConsecutiveFailures = 0
		job.NextRunAt = nextRunAt(job, now)
	}

	if err := w.deps.Jobs.Update(ctx, job); err != nil {
		w.logger.Error("update job after success failed", "job_id", job.ID, "error", err)
		return
	}

	if !terminal {
		return
	}

	if job.OnComplete == models.OnCompleteResumeConversation && w.deps.Resumer != nil {
		if err := w.deps.Resumer.Resume(ctx, job); err != nil {
			w.logger.Error("resume conversation failed", "job_id", job.ID, "error", err)
		}
	}

	if job.WorkflowID != nil && w.deps.Workflows != nil {
		w.completeWorkflowIfDone(ctx, *job.WorkflowID)
	}
}

func (w *Worker) completeWorkflowIfDone(ctx context.Context, workflowID string) {
	done, err := w.deps.Workflows.AllJobsTerminal(ctx, workflowID)
	if err != nil {
		w.logger.Error("check workflow terminal state failed", "workflow_id", workflowID, "error", err)
		return
	}
	if !done {
		return
	}
	wf, err := w.deps.Workflows.Get(ctx, workflowID)
	if err != nil {
		w.logger.Error("load workflow failed", "workflow_id", workflowID, "error", err)
		return
	}
	now := time.Now()
	wf.Status = models.JobStatusCompleted
	wf.CompletedAt = &now
	if err := w.deps.Workflows.Update(ctx, wf); err != nil {
		w.logger.Error("update workflow failed", "workflow_id", workflowID, "error", err)
	}
}

func (w *Worker) recordOutcome(job *models.ScheduledJob, outcome string) {
	if w.deps.Metrics == nil {
		return
	}
	w.deps.Metrics.SchedulerJobsProcessed.WithLabelValues(string(job.JobType), outcome).Inc()
}

func nextRunAt(job *models.ScheduledJob, now time.Time) *time.Time {
	next := now.Add(time.Duration(job.IntervalSeconds) * time.Second)
	return &next
}

func (w *Worker) publishIfRouted(ctx context.Context, job *models.ScheduledJob, content string) {
	if content == "" || job.Platform == "" || job.PlatformChannelID == "" {
		return
	}
	jobID := job.ID
	userID := job.UserID
	payload, err := json.Marshal(models.Notification{
		Platform: job.Platform, PlatformChannelID: job.PlatformChannelID, PlatformThreadID: job.PlatformThreadID,
		Content: content, UserID: &userID, JobID: &jobID,
	})
	if err != nil {
		w.logger.Error("marshal notification failed", "job_id", job.ID, "error", err)
		return
	}
	channel := "notifications:" + job.Platform
	if err := w.deps.Bus.Publish(ctx, channel, payload); err != nil {
		w.logger.Error("publish notification failed", "job_id", job.ID, "channel", channel, "error", err)
	}
}

// runCheck executes job's check_config per its job type.
func (w *Worker) runCheck(ctx context.Context, job *models.ScheduledJob) (bool, error) {
	switch job.JobType {
	case models.JobDelay:
		return w.checkDelay(job)
	case models.JobPollModule:
		return w.checkPollModule(ctx, job)
	case models.JobPollURL:
		return w.checkPollURL(ctx, job)
	default:
		return false, fmt.Errorf("unknown job type %q", job.JobType)
	}
}

func (w *Worker) checkDelay(job *models.ScheduledJob) (bool, error) {
	var cfg models.DelayCheck
	if err := json.Unmarshal(job.CheckConfig, &cfg); err != nil {
		return false, fmt.Errorf("decode delay check: %w", err)
	}
	return job.Attempts >= cfg.Attempts, nil
}

func (w *Worker) checkPollModule(ctx context.Context, job *models.ScheduledJob) (bool, error) {
	var cfg models.PollModuleCheck
	if err := json.Unmarshal(job.CheckConfig, &cfg); err != nil {
		return false, fmt.Errorf("decode poll_module check: %w", err)
	}
	result := w.deps.Tools.Dispatch(ctx, job.UserID, models.ToolCall{ToolName: cfg.ToolName, Arguments: cfg.Arguments})
	if !result.Success {
		return false, fmt.Errorf("tool %s failed: %s", cfg.ToolName, result.Error)
	}
	if cfg.ResultFieldPath == "" {
		return true, nil
	}
	got, ok := fieldAt(result.Result, cfg.ResultFieldPath)
	if !ok {
		return false, nil
	}
	return got == cfg.ExpectedValue, nil
}

func (w *Worker) checkPollURL(ctx context.Context, job *models.ScheduledJob) (bool, error) {
	var cfg models.PollURLCheck
	if err := json.Unmarshal(job.CheckConfig, &cfg); err != nil {
		return false, fmt.Errorf("decode poll_url check: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("build poll_url request: %w", err)
	}
	resp, err := w.deps.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("poll_url request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("poll_url: unexpected status %d", resp.StatusCode)
	}
	if cfg.BodyContains == "" {
		return true, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read poll_url body: %w", err)
	}
	return strings.Contains(string(body), cfg.BodyContains), nil
}
