package llmrouter

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/relaycore/assistant-core/internal/retrybackoff"
	"github.com/relaycore/assistant-core/pkg/models"
)

func zeroWaitPolicy() retrybackoff.Policy {
	return retrybackoff.Policy{InitialMs: 0, MaxMs: 0, Factor: 1, Jitter: 0}
}

type fakeProvider struct {
	name       string
	calls      int32
	failFirstN int32
	chatResp   *models.LLMResponse
	embedResp  []float32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Chat(ctx context.Context, req ChatRequest) (*models.LLMResponse, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failFirstN {
		return nil, errors.New("transient provider failure")
	}
	return f.chatResp, nil
}

func (f *fakeProvider) Embed(ctx context.Context, req EmbedRequest) ([]float32, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failFirstN {
		return nil, errors.New("transient provider failure")
	}
	return f.embedResp, nil
}

func TestRouterChatSucceedsAfterRetries(t *testing.T) {
	provider := &fakeProvider{
		name:       "anthropic",
		failFirstN: 1,
		chatResp: &models.LLMResponse{
			Content: "hello", Model: "claude-sonnet-4-20250514",
			InputTokens: 100, OutputTokens: 50, StopReason: models.StopEndTurn,
		},
	}
	router, err := NewRouter("anthropic", map[string]Provider{"anthropic": provider}, WithMaxAttempts(3), WithPolicy(zeroWaitPolicy()))
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	resp, err := router.Chat(context.Background(), ChatRequest{Model: "claude-sonnet-4-20250514"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "hello" {
		t.Fatalf("Chat() content = %q, want %q", resp.Content, "hello")
	}
	if atomic.LoadInt32(&provider.calls) != 2 {
		t.Fatalf("expected 2 calls (1 failure + 1 success), got %d", provider.calls)
	}
}

func TestRouterChatExhaustsRetriesAndSurfacesError(t *testing.T) {
	provider := &fakeProvider{name: "anthropic", failFirstN: 10}
	router, err := NewRouter("anthropic", map[string]Provider{"anthropic": provider}, WithMaxAttempts(2), WithPolicy(zeroWaitPolicy()))
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	_, err = router.Chat(context.Background(), ChatRequest{Model: "claude-sonnet-4-20250514"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&provider.calls) != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", provider.calls)
	}
}

func TestRouterChatUnknownProviderFails(t *testing.T) {
	provider := &fakeProvider{name: "anthropic"}
	router, err := NewRouter("anthropic", map[string]Provider{"anthropic": provider})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	_, err = router.Chat(context.Background(), ChatRequest{Provider: "openai", Model: "gpt-4o"})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestNewRouterRejectsUnknownDefaultProvider(t *testing.T) {
	_, err := NewRouter("openai", map[string]Provider{"anthropic": &fakeProvider{name: "anthropic"}})
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Fatalf("expected ErrProviderNotConfigured, got %v", err)
	}
}

func TestNewRouterRejectsEmptyProviders(t *testing.T) {
	_, err := NewRouter("anthropic", map[string]Provider{})
	if !errors.Is(err, ErrNoProvidersConfigured) {
		t.Fatalf("expected ErrNoProvidersConfigured, got %v", err)
	}
}

func TestRouterEmbedReturnsVector(t *testing.T) {
	provider := &fakeProvider{name: "openai", embedResp: []float32{0.1, 0.2, 0.3}}
	router, err := NewRouter("openai", map[string]Provider{"openai": provider})
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	vec, err := router.Embed(context.Background(), EmbedRequest{Text: "hello world"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("Embed() returned %d dims, want 3", len(vec))
	}
}
