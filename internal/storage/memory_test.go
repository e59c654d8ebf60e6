package storage

import (
	"context"
	"testing"
	"time"

	"github.com/relaycore/assistant-core/pkg/models"
)

func TestMemoryPlatformLinkFindOrCreateIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.PlatformLinks.FindOrCreate(ctx, "discord", "platform-user-1")
	if err != nil {
		t.Fatalf("FindOrCreate() error = %v", err)
	}
	second, err := store.PlatformLinks.FindOrCreate(ctx, "discord", "platform-user-1")
	if err != nil {
		t.Fatalf("FindOrCreate() error = %v", err)
	}
	if first.UserID != second.UserID {
		t.Fatalf("expected same user id, got %q and %q", first.UserID, second.UserID)
	}

	if _, err := store.Users.Get(ctx, first.UserID); err != nil {
		t.Fatalf("expected FindOrCreate to have created a user row: %v", err)
	}
}

func TestMemoryConversationFindActiveExcludesSummarized(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	live := &models.Conversation{
		UserID: "u1", Platform: "discord", PlatformChannelID: "c1",
		LastActiveAt: time.Now(), IsSummarized: false, CreatedAt: time.Now(),
	}
	summarized := &models.Conversation{
		UserID: "u1", Platform: "discord", PlatformChannelID: "c1",
		LastActiveAt: time.Now().Add(time.Minute), IsSummarized: true, CreatedAt: time.Now(),
	}
	if err := store.Conversations.Create(ctx, live); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Conversations.Create(ctx, summarized); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := store.Conversations.FindActive(ctx, "u1", "discord", "c1", "")
	if err != nil {
		t.Fatalf("FindActive() error = %v", err)
	}
	if found.ID != live.ID {
		t.Fatalf("expected the non-summarized conversation, got %q", found.ID)
	}
}

func TestMemoryScheduledJobClaimDueSkipsFutureJobs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	due := &models.ScheduledJob{UserID: "u1", Status: models.JobStatusActive, NextRunAt: &past}
	notDue := &models.ScheduledJob{UserID: "u1", Status: models.JobStatusActive, NextRunAt: &future}
	if err := store.ScheduledJobs.Create(ctx, due); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.ScheduledJobs.Create(ctx, notDue); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	claimed, err := store.ScheduledJobs.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("expected exactly the due job claimed, got %+v", claimed)
	}
	if claimed[0].Attempts != 1 {
		t.Fatalf("expected ClaimDue to increment attempts, got %d", claimed[0].Attempts)
	}
}

func TestMemoryMemorySummaryRecallByEmbeddingOrdersByDistance(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	near := &models.MemorySummary{UserID: "u1", Summary: "near", Embedding: []float32{1, 0, 0}, CreatedAt: time.Now()}
	far := &models.MemorySummary{UserID: "u1", Summary: "far", Embedding: []float32{0, 1, 0}, CreatedAt: time.Now()}
	if err := store.MemorySummaries.Create(ctx, far); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.MemorySummaries.Create(ctx, near); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	results, err := store.MemorySummaries.RecallByEmbedding(ctx, "u1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("RecallByEmbedding() error = %v", err)
	}
	if len(results) != 2 || results[0].Summary != "near" {
		t.Fatalf("expected nearest match first, got %+v", results)
	}
}

func TestMemoryLocationReminderListActiveByUserExcludesTriggered(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	active := &models.LocationReminder{UserID: "u1", Status: models.ReminderActive}
	triggered := &models.LocationReminder{UserID: "u1", Status: models.ReminderTriggered}
	if err := store.LocationReminders.Create(ctx, active); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.LocationReminders.Create(ctx, triggered); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	byUser, err := store.LocationReminders.ListActiveByUser(ctx)
	if err != nil {
		t.Fatalf("ListActiveByUser() error = %v", err)
	}
	if len(byUser["u1"]) != 1 || byUser["u1"][0].ID != active.ID {
		t.Fatalf("expected only the active reminder, got %+v", byUser["u1"])
	}
}
