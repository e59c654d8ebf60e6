package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaycore/assistant-core/internal/conversation"
	"github.com/relaycore/assistant-core/internal/errorlog"
	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/internal/retrybackoff"
	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/internal/toolregistry"
	"github.com/relaycore/assistant-core/pkg/models"
)

// fakePersonaStore always resolves to a fixed persona with weather access,
// sidestepping the in-memory persona store's seeding limitations in tests.
type fakePersonaStore struct{ persona models.Persona }

func (f *fakePersonaStore) Get(ctx context.Context, id string) (*models.Persona, error) {
	p := f.persona
	return &p, nil
}

func (f *fakePersonaStore) ResolveDefault(ctx context.Context, platform, platformServerID string) (*models.Persona, error) {
	p := f.persona
	return &p, nil
}

// toolCallingProvider returns a tool_use response on its first call and an
// end_turn response afterward, letting tests exercise one full
// tool-call/tool-result round trip.
type toolCallingProvider struct {
	calls int32
}

func (p *toolCallingProvider) Name() string { return "fake" }

func (p *toolCallingProvider) Chat(ctx context.Context, req llmrouter.ChatRequest) (*models.LLMResponse, error) {
	if atomic.AddInt32(&p.calls, 1) == 1 {
		return &models.LLMResponse{
			StopReason: models.StopToolUse,
			Model:      "fake-model",
			ToolCalls: []models.ToolCall{
				{ToolName: "weather.get_forecast", Arguments: json.RawMessage(`{"city":"nyc"}`), ToolUseID: "tc1"},
			},
		}, nil
	}
	return &models.LLMResponse{StopReason: models.StopEndTurn, Content: "it's sunny in nyc", Model: "fake-model"}, nil
}

func (p *toolCallingProvider) Embed(ctx context.Context, req llmrouter.EmbedRequest) ([]float32, error) {
	return nil, nil
}

func newTestService(t *testing.T, provider llmrouter.Provider) (*Service, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/manifest" {
			_ = json.NewEncoder(w).Encode(models.ModuleManifest{
				ModuleName: "weather",
				Tools: []models.ToolDefinition{
					{Name: "weather.get_forecast", RequiredPermission: models.PermissionUser,
						Parameters: []models.ToolParameter{{Name: "city", Type: "string", Required: true}}},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(models.ToolResult{Success: true, Result: json.RawMessage(`{"forecast":"sunny"}`)})
	}))
	t.Cleanup(server.Close)

	reg := toolregistry.New(toolregistry.Config{Endpoints: map[string]string{"weather": server.URL}}, nil, nil, nil)
	reg.RefreshAll(context.Background())

	router, err := llmrouter.NewRouter("fake", map[string]llmrouter.Provider{"fake": provider},
		llmrouter.WithMaxAttempts(1), llmrouter.WithPolicy(retrybackoff.Policy{}))
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	convSvc := conversation.New(store.Conversations, store.Messages, time.Hour)
	personas := &fakePersonaStore{persona: models.Persona{
		ID: "default", Name: "default", SystemPrompt: "be helpful",
		AllowedModules: []string{"weather"}, DefaultModel: "fake-model", MaxTokensRequest: 512, IsDefault: true,
	}}

	svc := New(Deps{
		Users:         store.Users,
		PlatformLinks: store.PlatformLinks,
		Personas:      personas,
		Conversations: convSvc,
		Tools:         reg,
		Router:        router,
		TokenLogs:     store.TokenLogs,
		ErrorLogs:     errorlog.New(store.ErrorLogs, nil, nil),
	}, Config{}, nil)

	return svc, store
}

func TestHandleNoToolCallReturnsAssistantText(t *testing.T) {
	provider := &toolCallingProvider{calls: 1} // pre-increment so first real call is the end_turn branch
	svc, _ := newTestService(t, provider)

	resp, err := svc.Handle(context.Background(), models.IncomingMessage{
		Platform: "discord", PlatformUserID: "u1", PlatformChannelID: "c1", Content: "hi",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.Content != "it's sunny in nyc" || resp.Error != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleExecutesToolCallAndContinuesLoop(t *testing.T) {
	provider := &toolCallingProvider{}
	svc, store := newTestService(t, provider)

	resp, err := svc.Handle(context.Background(), models.IncomingMessage{
		Platform: "discord", PlatformUserID: "u2", PlatformChannelID: "c1", Content: "what's the weather in nyc?",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.Content != "it's sunny in nyc" {
		t.Fatalf("expected final assistant text after tool round trip, got %+v", resp)
	}
	if len(resp.ToolCallsMetadata) != 1 || !resp.ToolCallsMetadata[0].Success || resp.ToolCallsMetadata[0].ToolName != "weather.get_forecast" {
		t.Fatalf("unexpected tool call metadata: %+v", resp.ToolCallsMetadata)
	}

	link, err := store.PlatformLinks.Get(context.Background(), "discord", "u2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	logs, err := store.TokenLogs.SumTokensThisMonth(context.Background(), link.UserID)
	if err != nil {
		t.Fatalf("SumTokensThisMonth() error = %v", err)
	}
	if logs < 0 {
		t.Fatalf("unexpected negative token sum: %d", logs)
	}
}

func TestHandleRefusesWhenOverBudget(t *testing.T) {
	provider := &toolCallingProvider{}
	svc, store := newTestService(t, provider)

	link, err := store.PlatformLinks.FindOrCreate(context.Background(), "discord", "u3")
	if err != nil {
		t.Fatalf("FindOrCreate() error = %v", err)
	}
	user, err := store.Users.Get(context.Background(), link.UserID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	budget := int64(10)
	user.TokenBudgetMonthly = &budget
	user.TokensUsedThisMonth = 10
	if err := store.Users.Update(context.Background(), user); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	resp, err := svc.Handle(context.Background(), models.IncomingMessage{
		Platform: "discord", PlatformUserID: "u3", PlatformChannelID: "c1", Content: "hi",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if resp.Error != string(models.ErrorBudgetExceeded) {
		t.Fatalf("expected budget refusal, got %+v", resp)
	}
	if resp.Content == "" {
		t.Fatal("expected a user-facing apology in Content")
	}
}
