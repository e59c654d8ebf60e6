// Package storage defines the durable store shared by the orchestrator,
// scheduler, and geofence worker, and provides Postgres/pgvector and
// in-memory implementations of it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/relaycore/assistant-core/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// UserStore persists platform-agnostic user identities.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// PlatformLinkStore persists the mapping from (platform, platform_user_id)
// to a canonical user.
type PlatformLinkStore interface {
	FindOrCreate(ctx context.Context, platform, platformUserID string) (*models.PlatformLink, error)
	Get(ctx context.Context, platform, platformUserID string) (*models.PlatformLink, error)
}

// PersonaStore persists assistant personas.
type PersonaStore interface {
	Get(ctx context.Context, id string) (*models.Persona, error)
	// ResolveDefault returns the default persona for a platform/server pair,
	// falling back to the global default when no server-scoped persona exists.
	ResolveDefault(ctx context.Context, platform, platformServerID string) (*models.Persona, error)
}

// ConversationStore persists conversations.
type ConversationStore interface {
	Create(ctx context.Context, conv *models.Conversation) error
	Get(ctx context.Context, id string) (*models.Conversation, error)
	// FindActive returns the most recently active, non-summarized
	// conversation for (userID, platform, channel, thread), or ErrNotFound.
	FindActive(ctx context.Context, userID, platform, channelID, threadID string) (*models.Conversation, error)
	Update(ctx context.Context, conv *models.Conversation) error
	// ListStaleUnsummarized returns conversations whose LastActiveAt is
	// older than the given cutoff and that are not yet summarized.
	ListStaleUnsummarized(ctx context.Context, cutoff time.Time) ([]*models.Conversation, error)
}

// MessageStore persists conversation messages.
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error
	// ListByConversation returns messages for a conversation in chronological
	// order, optionally limited to the most recent `limit` (0 = all).
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
}

// MemorySummaryStore persists and recalls embedded conversation summaries.
type MemorySummaryStore interface {
	Create(ctx context.Context, summary *models.MemorySummary) error
	// RecallByEmbedding returns the topK summaries for userID ordered by
	// ascending cosine distance to the query embedding.
	RecallByEmbedding(ctx context.Context, userID string, embedding []float32, topK int) ([]*models.MemorySummary, error)
	// RecallRecent returns the topK most recent summaries for userID,
	// used as the fallback when an embedding is unavailable.
	RecallRecent(ctx context.Context, userID string, topK int) ([]*models.MemorySummary, error)
}

// TokenLogStore persists per-LLM-call token usage.
type TokenLogStore interface {
	Create(ctx context.Context, log *models.TokenLog) error
	// SumTokensThisMonth returns the total input+output tokens logged for
	// userID since that user's UsageResetAt.
	SumTokensThisMonth(ctx context.Context, userID string) (int64, error)
}

// ScheduledJobStore persists durable background jobs.
type ScheduledJobStore interface {
	Create(ctx context.Context, job *models.ScheduledJob) error
	Get(ctx context.Context, id string) (*models.ScheduledJob, error)
	Update(ctx context.Context, job *models.ScheduledJob) error
	// ClaimDue atomically selects up to `limit` active jobs with
	// next_run_at <= now, increments their attempt counter, and returns
	// them. The jobs stay active and due until the caller updates them. In
	// Postgres the claim is one conditional UPDATE with SKIP LOCKED, so
	// replicas claiming at the same moment never both take the same row.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledJob, error)
}

// ScheduledWorkflowStore persists multi-job workflow groupings.
type ScheduledWorkflowStore interface {
	Get(ctx context.Context, id string) (*models.ScheduledWorkflow, error)
	Update(ctx context.Context, wf *models.ScheduledWorkflow) error
	// AllJobsTerminal reports whether every job belonging to workflowID has
	// left status=active.
	AllJobsTerminal(ctx context.Context, workflowID string) (bool, error)
}

// LocationReminderStore persists geofence reminders.
type LocationReminderStore interface {
	Create(ctx context.Context, r *models.LocationReminder) error
	Update(ctx context.Context, r *models.LocationReminder) error
	// ListActiveByUser returns all active reminders grouped by user.
	ListActiveByUser(ctx context.Context) (map[string][]*models.LocationReminder, error)
}

// UserLocationStore persists the latest known position per user.
type UserLocationStore interface {
	Upsert(ctx context.Context, loc *models.UserLocation) error
	Get(ctx context.Context, userID string) (*models.UserLocation, error)
}

// UserNamedPlaceStore persists user-defined named locations.
type UserNamedPlaceStore interface {
	Create(ctx context.Context, place *models.UserNamedPlace) error
	FindByName(ctx context.Context, userID, name string) (*models.UserNamedPlace, error)
}

// UserCredentialStore persists encrypted per-user service credentials.
type UserCredentialStore interface {
	Upsert(ctx context.Context, cred *models.UserCredential) error
	Get(ctx context.Context, userID, service, key string) (*models.UserCredential, error)
}

// ErrorLogStore persists the centralized error log.
type ErrorLogStore interface {
	Create(ctx context.Context, entry *models.ErrorLog) error
}

// Store groups every storage dependency the three worker processes share.
type Store struct {
	Users              UserStore
	PlatformLinks      PlatformLinkStore
	Personas           PersonaStore
	Conversations      ConversationStore
	Messages           MessageStore
	MemorySummaries    MemorySummaryStore
	TokenLogs          TokenLogStore
	ScheduledJobs      ScheduledJobStore
	ScheduledWorkflows ScheduledWorkflowStore
	LocationReminders  LocationReminderStore
	UserLocations      UserLocationStore
	UserNamedPlaces    UserNamedPlaceStore
	UserCredentials    UserCredentialStore
	ErrorLogs          ErrorLogStore

	closer func() error
}

// Close releases any underlying resources (e.g. the database connection).
func (s Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
