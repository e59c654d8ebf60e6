// Package agent implements the orchestration core: resolving the caller's
// identity and persona, locating their conversation, assembling the
// system prompt and tool list, and driving the LLM round-trip/tool-call
// iteration until the turn produces a final assistant message.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/internal/conversation"
	"github.com/relaycore/assistant-core/internal/errorlog"
	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/internal/memory"
	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/internal/toolregistry"
	"github.com/relaycore/assistant-core/pkg/models"
)

// Deps bundles every collaborator the agent loop calls into.
type Deps struct {
	Users         storage.UserStore
	PlatformLinks storage.PlatformLinkStore
	Personas      storage.PersonaStore
	Conversations *conversation.Service
	Memory        *memory.Service // nil disables recall
	Tools         *toolregistry.Registry
	Router        *llmrouter.Router
	TokenLogs     storage.TokenLogStore
	ErrorLogs     *errorlog.Service // nil disables async error capture
	Credentials   credentialResolver // nil disables required-credential injection
}

// Config tunes the loop's iteration and concurrency limits.
type Config struct {
	// MaxIterations caps tool-use round-trips per turn. Default: 10.
	MaxIterations int
	// ToolParallelism bounds concurrent tool dispatches within one
	// iteration. Default: 4.
	ToolParallelism int
	// TokenWindowBudget bounds the conversation history sent to the LLM,
	// in the conversation package's 4-chars-per-token estimate. Default: 6000.
	TokenWindowBudget int
	// EnableRecall turns on memory summary recall into the system prompt.
	EnableRecall bool
}

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.ToolParallelism <= 0 {
		cfg.ToolParallelism = 4
	}
	if cfg.TokenWindowBudget <= 0 {
		cfg.TokenWindowBudget = 6000
	}
	return cfg
}

// Service implements the agent loop.
type Service struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// New constructs an agent Service.
func New(deps Deps, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deps: deps, cfg: sanitizeConfig(cfg), logger: logger}
}

// Handle runs one orchestrator turn for an inbound platform message and
// returns the response to send back to the adapter. A non-nil error
// indicates an infrastructure failure (e.g. the conversation store is
// unreachable); controlled refusals (budget exceeded, LLM failure,
// iteration cap) are reported via AgentResponse.Error with a nil error.
func (s *Service) Handle(ctx context.Context, in models.IncomingMessage) (*models.AgentResponse, error) {
	user, err := resolveUser(ctx, s.deps.Users, s.deps.PlatformLinks, in.Platform, in.PlatformUserID)
	if err != nil {
		return nil, fmt.Errorf("agent: resolve user: %w", err)
	}

	if user.OverBudget() {
		return &models.AgentResponse{
			Content: "I'm sorry, but you've used up your monthly token budget. Please check back next month or ask an administrator to raise your limit.",
			Error:   string(models.ErrorBudgetExceeded),
		}, nil
	}

	persona, err := resolvePersona(ctx, s.deps.Personas, in.Platform, in.PlatformServerID)
	if err != nil {
		return nil, fmt.Errorf("agent: resolve persona: %w", err)
	}

	conv, err := s.deps.Conversations.LocateOrCreate(ctx, user.ID, in.Platform, in.PlatformChannelID, in.PlatformThreadID)
	if err != nil {
		return nil, fmt.Errorf("agent: locate conversation: %w", err)
	}

	return s.runTurn(ctx, user, persona, conv, renderIncomingContent(in))
}

// ResumeJob re-enters the turn loop on behalf of a completed scheduled job,
// using the job's stored routing rather than a fresh platform identity
// lookup: the job already carries the canonical user ID, so there is no
// platform_user_id to resolve a link from.
func (s *Service) ResumeJob(ctx context.Context, userID, platform, channelID string, threadID *string, content string) (*models.AgentResponse, error) {
	user, err := s.deps.Users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("agent: resolve resumed job user %s: %w", userID, err)
	}

	if user.OverBudget() {
		return &models.AgentResponse{
			Content: "I'm sorry, but you've used up your monthly token budget. Please check back next month or ask an administrator to raise your limit.",
			Error:   string(models.ErrorBudgetExceeded),
		}, nil
	}

	persona, err := resolvePersona(ctx, s.deps.Personas, platform, "")
	if err != nil {
		return nil, fmt.Errorf("agent: resolve persona: %w", err)
	}

	conv, err := s.deps.Conversations.LocateOrCreate(ctx, user.ID, platform, channelID, threadID)
	if err != nil {
		return nil, fmt.Errorf("agent: locate conversation: %w", err)
	}

	return s.runTurn(ctx, user, persona, conv, content)
}

// runTurn drives the shared iteration loop once the caller has already
// resolved a user, persona, and conversation.
func (s *Service) runTurn(ctx context.Context, user *models.User, persona *models.Persona, conv *models.Conversation, content string) (*models.AgentResponse, error) {
	if _, err := s.deps.Conversations.AppendMessage(ctx, conv, models.RoleUser, content, 0, ""); err != nil {
		return nil, fmt.Errorf("agent: append user message: %w", err)
	}

	tools := s.deps.Tools.ToolsFor(ctx, user.Permission, persona.AllowedModules)
	toolDefs := toolDefinitionsByName(tools)

	systemPrompt := persona.SystemPrompt
	if s.cfg.EnableRecall && s.deps.Memory != nil {
		summaries, err := s.deps.Memory.Recall(ctx, user.ID, content)
		if err != nil {
			s.logger.Warn("memory recall failed, continuing without it", "user_id", user.ID, "error", err)
		} else {
			systemPrompt = buildSystemPrompt(persona, summaries)
		}
	}

	var toolMeta []models.ToolCallMeta

	for iteration := 0; iteration < s.cfg.MaxIterations; iteration++ {
		history, err := s.deps.Conversations.Window(ctx, conv, s.cfg.TokenWindowBudget)
		if err != nil {
			return nil, fmt.Errorf("agent: window conversation: %w", err)
		}

		messages := make([]models.ChatMessage, 0, len(history)+1)
		messages = append(messages, models.ChatMessage{Role: models.RoleSystem, Content: systemPrompt})
		messages = append(messages, toChatMessages(history)...)

		resp, err := s.deps.Router.Chat(ctx, llmrouter.ChatRequest{
			Model:     persona.DefaultModel,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: persona.MaxTokensRequest,
		})
		if err != nil {
			if s.deps.ErrorLogs != nil {
				s.deps.ErrorLogs.Record(ctx, errorlog.Entry{Service: "orchestrator", Category: models.ErrorLLMCall, Message: err.Error()})
			}
			return &models.AgentResponse{Error: "the assistant is temporarily unavailable"}, nil
		}

		s.recordTokenLog(ctx, user.ID, conv.ID, resp)

		if resp.StopReason != models.StopToolUse || len(resp.ToolCalls) == 0 {
			if _, err := s.deps.Conversations.AppendMessage(ctx, conv, models.RoleAssistant, resp.Content, resp.OutputTokens, resp.Model); err != nil {
				return nil, fmt.Errorf("agent: append assistant message: %w", err)
			}
			return &models.AgentResponse{Content: resp.Content, ToolCallsMetadata: toolMeta}, nil
		}

		results := s.executeToolCalls(ctx, user.ID, conv, resp.ToolCalls, toolDefs)
		for i, call := range resp.ToolCalls {
			result := results[i]
			toolMeta = append(toolMeta, models.ToolCallMeta{ToolName: call.ToolName, Success: result.Success})

			callPayload := []byte(call.Arguments)
			resultPayload := result.Result
			if !result.Success {
				resultPayload = marshalOrEmpty(map[string]string{"error": result.Error})
			}
			if err := s.deps.Conversations.AppendToolExchange(ctx, conv, call.ToolUseID, call.ToolName, callPayload, resultPayload, !result.Success); err != nil {
				return nil, fmt.Errorf("agent: append tool exchange: %w", err)
			}
		}
	}

	last, err := s.lastAssistantText(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("agent: read last assistant message: %w", err)
	}
	return &models.AgentResponse{Content: last, Error: "maximum tool iterations exceeded", ToolCallsMetadata: toolMeta}, nil
}

// executeToolCalls dispatches resp.ToolCalls concurrently, bounded by
// ToolParallelism, injecting routing/user context per call before
// handing off to the registry.
func (s *Service) executeToolCalls(ctx context.Context, userID string, conv *models.Conversation, calls []models.ToolCall, toolDefs map[string]*models.ToolDefinition) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	sem := make(chan struct{}, s.cfg.ToolParallelism)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			injected, err := injectContext(ctx, call, toolDefs[call.ToolName], userID, conv, s.deps.Credentials)
			if err != nil {
				results[i] = models.ToolResult{ToolName: call.ToolName, Success: false, Error: err.Error()}
				return
			}
			results[i] = s.deps.Tools.Dispatch(ctx, userID, injected)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (s *Service) recordTokenLog(ctx context.Context, userID, conversationID string, resp *models.LLMResponse) {
	if s.deps.TokenLogs == nil {
		return
	}
	cost, _ := s.deps.Router.EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens)
	err := s.deps.TokenLogs.Create(ctx, &models.TokenLog{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		Model:          resp.Model,
		InputTokens:    resp.InputTokens,
		OutputTokens:   resp.OutputTokens,
		EstimatedUSD:   cost,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		s.logger.Warn("token log write failed", "user_id", userID, "error", err)
	}
}

func (s *Service) lastAssistantText(ctx context.Context, conv *models.Conversation) (string, error) {
	history, err := s.deps.Conversations.Window(ctx, conv, s.cfg.TokenWindowBudget)
	if err != nil {
		return "", err
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			return history[i].Content, nil
		}
	}
	return "", nil
}
