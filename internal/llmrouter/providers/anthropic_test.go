package providers

import (
	"encoding/json"
	"testing"

	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/pkg/models"
)

func TestExtractSystemPromptFindsSystemMessage(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: "be concise"},
		{Role: models.RoleUser, Content: "hi"},
	}
	if got := extractSystemPrompt(messages); got != "be concise" {
		t.Fatalf("extractSystemPrompt() = %q, want %q", got, "be concise")
	}
}

func TestConvertMessagesToAnthropicSkipsSystemRole(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleSystem, Content: "be concise"},
		{Role: models.RoleUser, Content: "hi"},
	}
	converted, err := convertMessagesToAnthropic(messages, llmrouter.NewToolNameMapper())
	if err != nil {
		t.Fatalf("convertMessagesToAnthropic() error = %v", err)
	}
	if len(converted) != 1 {
		t.Fatalf("expected system message filtered out, got %d messages", len(converted))
	}
}

func TestConvertMessagesToAnthropicRejectsInvalidToolArguments(t *testing.T) {
	messages := []models.ChatMessage{
		{Role: models.RoleToolCall, ToolName: "weather.get_forecast", ToolUseID: "1", Arguments: "not json"},
	}
	if _, err := convertMessagesToAnthropic(messages, llmrouter.NewToolNameMapper()); err == nil {
		t.Fatal("expected error for malformed tool call arguments")
	}
}

func TestConvertToolsToAnthropicSanitizesNames(t *testing.T) {
	mapper := llmrouter.NewToolNameMapper()
	tools := []models.ToolDefinition{
		{Name: "weather.get_forecast", Description: "get forecast", Parameters: []models.ToolParameter{
			{Name: "city", Type: "string", Required: true},
		}},
	}
	converted, err := convertToolsToAnthropic(tools, mapper)
	if err != nil {
		t.Fatalf("convertToolsToAnthropic() error = %v", err)
	}
	if len(converted) != 1 || converted[0].OfTool == nil {
		t.Fatalf("expected one tool param, got %+v", converted)
	}
	if converted[0].OfTool.Name != "weather_get_forecast" {
		t.Fatalf("expected sanitized name, got %q", converted[0].OfTool.Name)
	}
	if mapper.Canonical("weather_get_forecast") != "weather.get_forecast" {
		t.Fatal("expected reverse mapping to be registered")
	}
}

func TestMapAnthropicStopReason(t *testing.T) {
	cases := map[string]models.StopReason{
		"tool_use":   models.StopToolUse,
		"max_tokens": models.StopMaxTokens,
		"end_turn":   models.StopEndTurn,
		"unknown":    models.StopEndTurn,
	}
	for input, want := range cases {
		if got := mapAnthropicStopReason(input); got != want {
			t.Errorf("mapAnthropicStopReason(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestAnthropicInputSchemaMarksRequiredFields(t *testing.T) {
	schema := anthropicInputSchema([]models.ToolParameter{
		{Name: "city", Type: "string", Required: true},
		{Name: "units", Type: "string", Enum: []string{"c", "f"}},
	})
	raw, err := json.Marshal(schema.Properties)
	if err != nil {
		t.Fatalf("marshal properties: %v", err)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "city" {
		t.Fatalf("expected only 'city' required, got %v", schema.Required)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty properties")
	}
}
