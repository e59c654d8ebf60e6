package providers

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/pkg/models"
)

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	DefaultModel   string
	EmbeddingModel string
}

// OpenAIProvider adapts OpenAI's chat completions and embeddings APIs to
// llmrouter.Provider.
type OpenAIProvider struct {
	client         *openai.Client
	defaultModel   string
	embeddingModel string
}

// NewOpenAIProvider constructs an OpenAIProvider from cfg.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = openai.GPT4o
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = string(openai.SmallEmbedding3)
	}
	return &OpenAIProvider{
		client:         openai.NewClientWithConfig(clientCfg),
		defaultModel:   defaultModel,
		embeddingModel: embeddingModel,
	}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) model(requested string) string {
	if requested == "" {
		return p.defaultModel
	}
	return requested
}

// Chat sends req to OpenAI's chat completions endpoint (non-streaming) and
// translates the response back to the canonical models.LLMResponse.
func (p *OpenAIProvider) Chat(ctx context.Context, req llmrouter.ChatRequest) (*models.LLMResponse, error) {
	mapper := llmrouter.NewToolNameMapper()

	messages, err := convertMessagesToOpenAI(req.Messages, mapper)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsToOpenAI(req.Tools, mapper)
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return openAIResponseToCanonical(resp, mapper), nil
}

// Embed sends text to OpenAI's embeddings endpoint.
func (p *OpenAIProvider) Embed(ctx context.Context, req llmrouter.EmbedRequest) ([]float32, error) {
	model := req.Model
	if model == "" {
		model = p.embeddingModel
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{req.Text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

func convertMessagesToOpenAI(messages []models.ChatMessage, mapper *llmrouter.ToolNameMapper) ([]openai.ChatCompletionMessage, error) {
	var result []openai.ChatCompletionMessage
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})

		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})

		case models.RoleAssistant:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content})

		case models.RoleToolCall:
			result = append(result, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   msg.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      mapper.Sanitize(msg.ToolName),
						Arguments: msg.Arguments,
					},
				}},
			})

		case models.RoleToolResult:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.ResultBody,
				ToolCallID: msg.ToolUseID,
			})
		}
	}
	return result, nil
}

func convertToolsToOpenAI(tools []models.ToolDefinition, mapper *llmrouter.ToolNameMapper) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        mapper.Sanitize(tool.Name),
				Description: tool.Description,
				Parameters:  openAIParameterSchema(tool.Parameters),
			},
		}
	}
	return result
}

func openAIParameterSchema(params []models.ToolParameter) map[string]any {
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
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func openAIResponseToCanonical(resp openai.ChatCompletionResponse, mapper *llmrouter.ToolNameMapper) *models.LLMResponse {
	choice := resp.Choices[0]
	out := &models.LLMResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   mapOpenAIFinishReason(choice.FinishReason),
	}

	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ToolName:  mapper.Canonical(tc.Function.Name),
			Arguments: json.RawMessage(tc.Function.Arguments),
			ToolUseID: tc.ID,
		})
	}

	return out
}

func mapOpenAIFinishReason(reason openai.FinishReason) models.StopReason {
	switch reason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return models.StopToolUse
	case openai.FinishReasonLength:
		return models.StopMaxTokens
	default:
		return models.StopEndTurn
	}
}
