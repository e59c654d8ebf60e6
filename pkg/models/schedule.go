package models

import (
	"encoding/json"
	"time"
)

// JobType selects which check the scheduler worker runs for a job.
type JobType string

const (
	JobPollModule JobType = "poll_module"
	JobDelay      JobType = "delay"
	JobPollURL    JobType = "poll_url"
)

// JobStatus is the lifecycle state of a ScheduledJob.
type JobStatus string

const (
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusExpired   JobStatus = "expired"
)

// JobCompletionAction selects what happens after a job's final success.
type JobCompletionAction string

const (
	OnCompleteNotify            JobCompletionAction = "notify"
	OnCompleteResumeConversation JobCompletionAction = "resume_conversation"
)

// ScheduledJob is a durable background job polled by the scheduler worker.
//
// Invariant: status=active implies next_run_at is set. Terminal statuses
// set CompletedAt and never run again.
type ScheduledJob struct {
	ID                  string              `json:"id"`
	UserID              string              `json:"user_id"`
	WorkflowID          *string             `json:"workflow_id,omitempty"`
	JobType             JobType             `json:"job_type"`
	CheckConfig         json.RawMessage     `json:"check_config"`
	IntervalSeconds     int                 `json:"interval_seconds"`
	MaxAttempts         int                 `json:"max_attempts"`
	MaxRuns             *int                `json:"max_runs,omitempty"`
	Attempts            int                 `json:"attempts"`
	RunsCompleted        int                `json:"runs_completed"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	ExpiresAt           *time.Time          `json:"expires_at,omitempty"`
	Status              JobStatus           `json:"status"`
	NextRunAt           *time.Time          `json:"next_run_at,omitempty"`
	OnSuccessMessage    string              `json:"on_success_message"`
	OnFailureMessage    string              `json:"on_failure_message,omitempty"`
	OnComplete          JobCompletionAction `json:"on_complete"`

	Platform          string  `json:"platform"`
	PlatformChannelID string  `json:"platform_channel_id"`
	PlatformThreadID  *string `json:"platform_thread_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OneShot reports whether this job completes after a single successful run.
func (j *ScheduledJob) OneShot() bool {
	if j.MaxRuns == nil {
		return true
	}
	return j.RunsCompleted+1 >= *j.MaxRuns
}

// ScheduledWorkflow is a first-class grouping for multi-step jobs.
type ScheduledWorkflow struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PollModuleCheck is the CheckConfig payload for JobPollModule jobs.
type PollModuleCheck struct {
	ToolName         string          `json:"tool_name"`
	Arguments        json.RawMessage `json:"arguments"`
	ResultFieldPath  string          `json:"result_field_path,omitempty"`
	ExpectedValue    string          `json:"expected_value,omitempty"`
}

// PollURLCheck is the CheckConfig payload for JobPollURL jobs.
type PollURLCheck struct {
	URL             string `json:"url"`
	BodyContains    string `json:"body_contains,omitempty"`
}

// DelayCheck is the CheckConfig payload for JobDelay jobs.
type DelayCheck struct {
	Attempts int `json:"attempts"`
}
