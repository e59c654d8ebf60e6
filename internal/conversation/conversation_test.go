package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/pkg/models"
)

func newTestService(t *testing.T) (*Service, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	return New(store.Conversations, store.Messages, time.Hour), store
}

func TestLocateOrCreateInsertsNewConversationWhenNoneExists(t *testing.T) {
	svc, _ := newTestService(t)
	conv, err := svc.LocateOrCreate(context.Background(), "user-1", "discord", "chan-1", "")
	if err != nil {
		t.Fatalf("LocateOrCreate() error = %v", err)
	}
	if conv.ID == "" || conv.UserID != "user-1" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestLocateOrCreateReusesActiveConversationWithinWindow(t *testing.T) {
	svc, _ := newTestService(t)
	first, err := svc.LocateOrCreate(context.Background(), "user-1", "discord", "chan-1", "")
	if err != nil {
		t.Fatalf("LocateOrCreate() error = %v", err)
	}

	second, err := svc.LocateOrCreate(context.Background(), "user-1", "discord", "chan-1", "")
	if err != nil {
		t.Fatalf("LocateOrCreate() error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected reuse of conversation %s, got new %s", first.ID, second.ID)
	}
}

func TestLocateOrCreateStartsNewConversationOutsideWindow(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := New(store.Conversations, store.Messages, time.Millisecond)

	first, err := svc.LocateOrCreate(context.Background(), "user-1", "discord", "chan-1", "")
	if err != nil {
		t.Fatalf("LocateOrCreate() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	second, err := svc.LocateOrCreate(context.Background(), "user-1", "discord", "chan-1", "")
	if err != nil {
		t.Fatalf("LocateOrCreate() error = %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a new conversation once outside the inactivity window")
	}
}

func TestAppendMessageAdvancesLastActiveAt(t *testing.T) {
	svc, _ := newTestService(t)
	conv, _ := svc.LocateOrCreate(context.Background(), "user-1", "discord", "chan-1", "")
	before := conv.LastActiveAt

	time.Sleep(time.Millisecond)
	if _, err := svc.AppendMessage(context.Background(), conv, models.RoleUser, "hello", 0, ""); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if !conv.LastActiveAt.After(before) {
		t.Fatal("expected LastActiveAt to advance")
	}
}

func TestWindowNeverSplitsToolCallResultPair(t *testing.T) {
	now := time.Now()
	all := []*models.Message{
		{Role: models.RoleUser, Content: "hi", CreatedAt: now},
		{Role: models.RoleToolCall, ToolUseID: "t1", CreatedAt: now.Add(time.Second)},
		{Role: models.RoleToolResult, ToolUseID: "t1", CreatedAt: now.Add(2 * time.Second)},
		{Role: models.RoleAssistant, Content: "done", CreatedAt: now.Add(3 * time.Second)},
	}

	got := window(all, 1) // impossibly small budget forces aggressive trimming
	if len(got) == 0 {
		t.Fatal("expected at least the tail message")
	}
	if got[0].Role == models.RoleToolResult {
		t.Fatalf("window started on an orphaned tool_result: %+v", got[0])
	}
}

func TestWindowReturnsFullHistoryWhenItFitsBudget(t *testing.T) {
	now := time.Now()
	all := []*models.Message{
		{Role: models.RoleUser, Content: "hi", CreatedAt: now, TokenCount: 2},
		{Role: models.RoleAssistant, Content: "hello", CreatedAt: now.Add(time.Second), TokenCount: 2},
	}
	got := window(all, 100)
	if len(got) != 2 {
		t.Fatalf("expected full history, got %d messages", len(got))
	}
}
