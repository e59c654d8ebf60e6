package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/internal/retrybackoff"
	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/pkg/models"
)

type fakeProvider struct {
	chatContent string
	embedVec    []float32
	embedErr    error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Chat(ctx context.Context, req llmrouter.ChatRequest) (*models.LLMResponse, error) {
	return &models.LLMResponse{Content: f.chatContent, Model: "fake-model", InputTokens: 10, OutputTokens: 5, StopReason: models.StopEndTurn}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, req llmrouter.EmbedRequest) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedVec, nil
}

func newTestRouter(t *testing.T, provider *fakeProvider) *llmrouter.Router {
	t.Helper()
	router, err := llmrouter.NewRouter("fake", map[string]llmrouter.Provider{"fake": provider},
		llmrouter.WithMaxAttempts(1), llmrouter.WithPolicy(retrybackoff.Policy{InitialMs: 0, MaxMs: 0, Factor: 1, Jitter: 0}))
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router
}

func TestTickSummarizesStaleConversationAndMarksTerminal(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := &models.Conversation{ID: "c1", UserID: "u1", LastActiveAt: time.Now().Add(-time.Hour)}
	if err := store.Conversations.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Messages.Append(context.Background(), &models.Message{ID: "m1", ConversationID: "c1", Role: models.RoleUser, Content: "remember my flight is at 5pm", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	provider := &fakeProvider{chatContent: "user has a 5pm flight", embedVec: []float32{0.1, 0.2}}
	router := newTestRouter(t, provider)
	svc := New(store.Conversations, store.Messages, store.MemorySummaries, store.TokenLogs, router, Config{SummarizeAfterIdle: time.Minute}, nil)

	if err := svc.Tick(context.Background(), 10); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	updated, err := store.Conversations.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !updated.IsSummarized {
		t.Fatal("expected conversation to be marked summarized")
	}

	summaries, err := store.MemorySummaries.RecallRecent(context.Background(), "u1", 5)
	if err != nil {
		t.Fatalf("RecallRecent() error = %v", err)
	}
	if len(summaries) != 1 || summaries[0].Summary != "user has a 5pm flight" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}

func TestTickMarksEmptyConversationSummarizedWithoutSummary(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := &models.Conversation{ID: "c2", UserID: "u2", LastActiveAt: time.Now().Add(-time.Hour)}
	if err := store.Conversations.Create(context.Background(), conv); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	router := newTestRouter(t, &fakeProvider{})
	svc := New(store.Conversations, store.Messages, store.MemorySummaries, store.TokenLogs, router, Config{SummarizeAfterIdle: time.Minute}, nil)

	if err := svc.Tick(context.Background(), 10); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	updated, err := store.Conversations.Get(context.Background(), "c2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !updated.IsSummarized {
		t.Fatal("expected empty conversation to be marked summarized")
	}

	summaries, _ := store.MemorySummaries.RecallRecent(context.Background(), "u2", 5)
	if len(summaries) != 0 {
		t.Fatalf("expected no summary created for empty conversation, got %d", len(summaries))
	}
}

func TestSummarizeOneStoresNilEmbeddingOnEmbedFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := &models.Conversation{ID: "c3", UserID: "u3", LastActiveAt: time.Now().Add(-time.Hour)}
	_ = store.Conversations.Create(context.Background(), conv)
	_ = store.Messages.Append(context.Background(), &models.Message{ID: "m1", ConversationID: "c3", Role: models.RoleUser, Content: "hello", CreatedAt: time.Now()})

	router := newTestRouter(t, &fakeProvider{chatContent: "summary text", embedErr: errors.New("embed service down")})
	svc := New(store.Conversations, store.Messages, store.MemorySummaries, store.TokenLogs, router, Config{SummarizeAfterIdle: time.Minute}, nil)

	if err := svc.Tick(context.Background(), 10); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}

	summaries, _ := store.MemorySummaries.RecallRecent(context.Background(), "u3", 5)
	if len(summaries) != 1 {
		t.Fatalf("expected summary to be stored despite embed failure, got %d", len(summaries))
	}
	if summaries[0].Embedding != nil {
		t.Fatalf("expected nil embedding on embed failure, got %v", summaries[0].Embedding)
	}
}

func TestRecallFallsBackToRecentOnEmbedFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	_ = store.MemorySummaries.Create(context.Background(), &models.MemorySummary{ID: "s1", UserID: "u4", Summary: "fact one", CreatedAt: time.Now()})

	router := newTestRouter(t, &fakeProvider{embedErr: errors.New("down")})
	svc := New(store.Conversations, store.Messages, store.MemorySummaries, store.TokenLogs, router, Config{}, nil)

	results, err := svc.Recall(context.Background(), "u4", "query")
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(results) != 1 || results[0].Summary != "fact one" {
		t.Fatalf("unexpected recall results: %+v", results)
	}
}
