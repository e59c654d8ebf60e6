// Package providers implements the per-backend LLM adapters behind
// llmrouter.Provider: translating the router's canonical request/response
// shapes into each provider's wire format, including tool-name
// sanitization with a per-request reverse mapping.
package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/pkg/models"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey         string
	BaseURL        string
	DefaultModel   string
	EmbeddingModel string
}

// AnthropicProvider adapts Anthropic's Messages API to llmrouter.Provider.
// Anthropic has no first-party embedding endpoint, so Embed always returns
// an error. Router.Embed does not redirect a failed embed to another
// provider, so callers embedding through this provider get that error.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider constructs an AnthropicProvider from cfg.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

func maxTokensOrDefault(n int) int64 {
	if n <= 0 {
		return defaultAnthropicMaxTokens
	}
	return int64(n)
}

// Chat sends req to Anthropic's Messages.New (non-streaming) and translates
// the response back to the canonical models.LLMResponse.
func (p *AnthropicProvider) Chat(ctx context.Context, req llmrouter.ChatRequest) (*models.LLMResponse, error) {
	mapper := llmrouter.NewToolNameMapper()

	anthropicMessages, err := convertMessagesToAnthropic(req.Messages, mapper)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(req.Model)),
		Messages:  anthropicMessages,
		MaxTokens: maxTokensOrDefault(req.MaxTokens),
	}

	if system := extractSystemPrompt(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	if len(req.Tools) > 0 {
		tools, err := convertToolsToAnthropic(req.Tools, mapper)
		if err != nil {
			return nil, fmt.Errorf("anthropic: convert tools: %w", err)
		}
		params.Tools = tools
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}

	return anthropicResponseToCanonical(message, mapper), nil
}

// Embed is unsupported by Anthropic's API.
func (p *AnthropicProvider) Embed(ctx context.Context, req llmrouter.EmbedRequest) ([]float32, error) {
	return nil, fmt.Errorf("anthropic: embeddings not supported by this provider")
}

func extractSystemPrompt(messages []models.ChatMessage) string {
	for _, m := range messages {
		if m.Role == models.RoleSystem {
			return m.Content
		}
	}
	return ""
}

func convertMessagesToAnthropic(messages []models.ChatMessage, mapper *llmrouter.ToolNameMapper) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			continue // handled separately via params.System

		case models.RoleUser:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case models.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))

		case models.RoleToolCall:
			var input map[string]any
			if msg.Arguments != "" {
				if err := json.Unmarshal([]byte(msg.Arguments), &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", msg.ToolUseID, err)
				}
			}
			result = append(result, anthropic.NewAssistantMessage(
				anthropic.NewToolUseBlock(msg.ToolUseID, input, mapper.Sanitize(msg.ToolName)),
			))

		case models.RoleToolResult:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolUseID, msg.ResultBody, msg.IsError),
			))
		}
	}
	return result, nil
}

func convertToolsToAnthropic(tools []models.ToolDefinition, mapper *llmrouter.ToolNameMapper) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropicInputSchema(tool.Parameters)
		providerName := mapper.Sanitize(tool.Name)
		toolParam := anthropic.ToolUnionParamOfTool(schema, providerName)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

func anthropicInputSchema(params []models.ToolParameter) anthropic.ToolInputSchemaParam {
	properties := map[string]any{}
	var required []string
	for _, p := range params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return anthropic.ToolInputSchemaParam{
		Properties: properties,
		Required:   required,
	}
}

func anthropicResponseToCanonical(message *anthropic.Message, mapper *llmrouter.ToolNameMapper) *models.LLMResponse {
	resp := &models.LLMResponse{
		Model:        string(message.Model),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
		StopReason:   mapAnthropicStopReason(string(message.StopReason)),
	}

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			resp.Content += block.AsText().Text
		case "tool_use":
			toolUse := block.AsToolUse()
			args, _ := json.Marshal(toolUse.Input)
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ToolName:  mapper.Canonical(toolUse.Name),
				Arguments: args,
				ToolUseID: toolUse.ID,
			})
		}
	}

	return resp
}

func mapAnthropicStopReason(reason string) models.StopReason {
	switch reason {
	case "tool_use":
		return models.StopToolUse
	case "max_tokens":
		return models.StopMaxTokens
	default:
		return models.StopEndTurn
	}
}

func classifyAnthropicError(err error) error {
	return fmt.Errorf("anthropic: %w", err)
}
