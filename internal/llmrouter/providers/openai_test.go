package providers

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/pkg/models"
)

func TestConvertMessagesToOpenAIMapsRoles(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: "be concise"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleToolResult, ToolUseID: "call1", ResultBody: `{"ok":true}`},
	}
	converted, err := convertMessagesToOpenAI(messages, llmrouter.NewToolNameMapper())
	if err != nil {
		t.Fatalf("convertMessagesToOpenAI() error = %v", err)
	}
	if len(converted) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(converted))
	}
	if converted[3].Role != openai.ChatMessageRoleTool || converted[3].ToolCallID != "call1" {
		t.Fatalf("expected tool result message bound to call1, got %+v", converted[3])
	}
}

func TestConvertToolsToOpenAISanitizesNames(t *testing.T) {
	mapper := llmrouter.NewToolNameMapper()
	tools := []models.ToolDefinition{
		{Name: "calendar.create_event", Description: "create an event", Parameters: []models.ToolParameter{
			{Name: "title", Type: "string", Required: true},
		}},
	}
	converted := convertToolsToOpenAI(tools, mapper)
	if len(converted) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(converted))
	}
	if converted[0].Function.Name != "calendar_create_event" {
		t.Fatalf("expected sanitized name, got %q", converted[0].Function.Name)
	}
}

func TestMapOpenAIFinishReason(t *testing.T) {
	cases := map[openai.FinishReason]models.StopReason{
		openai.FinishReasonToolCalls:     models.StopToolUse,
		openai.FinishReasonFunctionCall:  models.StopToolUse,
		openai.FinishReasonLength:        models.StopMaxTokens,
		openai.FinishReasonStop:          models.StopEndTurn,
	}
	for input, want := range cases {
		if got := mapOpenAIFinishReason(input); got != want {
			t.Errorf("mapOpenAIFinishReason(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestOpenAIParameterSchemaMarksRequiredFields(t *testing.T) {
	schema := openAIParameterSchema([]models.ToolParameter{
		{Name: "city", Type: "string", Required: true},
		{Name: "units", Type: "string"},
	})
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "city" {
		t.Fatalf("expected only 'city' required, got %v", schema["required"])
	}
}

func TestNewOpenAIProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
