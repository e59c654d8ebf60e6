package agent

import (
	"encoding/json"
	"strings"

	"github.com/relaycore/assistant-core/pkg/models"
)

// toChatMessage translates a stored Message into the canonical ChatMessage
// shape the LLM router expects, recovering Arguments/ResultBody from the
// message's ToolPayload depending on its role.
func toChatMessage(msg *models.Message) models.ChatMessage {
	cm := models.ChatMessage{Role: msg.Role, Content: msg.Content, ToolUseID: msg.ToolUseID}
	switch msg.Role {
	case models.RoleToolCall:
		cm.ToolName = msg.ToolName
		cm.Arguments = string(msg.ToolPayload)
	case models.RoleToolResult:
		cm.ResultBody = string(msg.ToolPayload)
		cm.IsError = msg.Content == "error"
	}
	return cm
}

func toChatMessages(msgs []*models.Message) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toChatMessage(m))
	}
	return out
}

// renderIncomingContent folds an incoming message's attachments into its
// text content as a trailing metadata block, since the canonical
// ChatMessage/Message shapes carry only a single Content string.
func renderIncomingContent(in models.IncomingMessage) string {
	if len(in.Attachments) == 0 {
		return in.Content
	}
	var b strings.Builder
	b.WriteString(in.Content)
	b.WriteString("\n\n[attachments]\n")
	for _, a := range in.Attachments {
		b.WriteString("- ")
		if a.Filename != "" {
			b.WriteString(a.Filename)
			b.WriteString(" ")
		}
		b.WriteString(a.URL)
		if a.MimeType != "" {
			b.WriteString(" (")
			b.WriteString(a.MimeType)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildSystemPrompt(persona *models.Persona, summaries []*models.MemorySummary) string {
	if len(summaries) == 0 {
		return persona.SystemPrompt
	}
	var b strings.Builder
	b.WriteString(persona.SystemPrompt)
	b.WriteString("\n\nRelevant memory:\n")
	for _, s := range summaries {
		b.WriteString("- ")
		b.WriteString(s.Summary)
		b.WriteString("\n")
	}
	return b.String()
}

func toolDefinitionsByName(defs []models.ToolDefinition) map[string]*models.ToolDefinition {
	m := make(map[string]*models.ToolDefinition, len(defs))
	for i := range defs {
		m[defs[i].Name] = &defs[i]
	}
	return m
}

func marshalOrEmpty(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
