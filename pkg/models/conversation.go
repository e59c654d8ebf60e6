package models

import (
	"encoding/json"
	"time"
)

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser       MessageRole = "user"
	RoleAssistant  MessageRole = "assistant"
	RoleSystem     MessageRole = "system"
	RoleToolCall   MessageRole = "tool_call"
	RoleToolResult MessageRole = "tool_result"
)

// Conversation is keyed by (user, platform, platform_channel_id,
// platform_thread_id).
//
// Invariant: a conversation is selected, not created, when an active
// unsummarized conversation exists for that tuple within the inactivity
// window; otherwise a new one is inserted. Summarization is terminal:
// IsSummarized=true freezes the row for reads.
type Conversation struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Platform          string    `json:"platform"`
	PlatformChannelID string    `json:"platform_channel_id"`
	PlatformThreadID  string    `json:"platform_thread_id,omitempty"`
	LastActiveAt      time.Time `json:"last_active_at"`
	IsSummarized      bool      `json:"is_summarized"`
	Title             string    `json:"title,omitempty"`
	LastReadAt        time.Time `json:"last_read_at,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Message is ordered within a conversation by CreatedAt.
//
// Invariant: every tool_call message has a matching tool_result message
// (either a success result or a captured error), joined by ToolUseID.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           MessageRole     `json:"role"`
	Content        string          `json:"content"`
	ToolUseID      string          `json:"tool_use_id,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolPayload    json.RawMessage `json:"tool_payload,omitempty"`
	TokenCount     int             `json:"token_count,omitempty"`
	Model          string          `json:"model,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MemorySummary is a compact textual digest of a closed conversation.
//
// Invariant: exactly one summary is produced per summarized conversation.
type MemorySummary struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Summary        string    `json:"summary"`
	Embedding      []float32 `json:"embedding,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TokenLog is an append-only record of a single LLM call.
type TokenLog struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Model          string    `json:"model"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	EstimatedUSD   float64   `json:"estimated_usd"`
	CreatedAt      time.Time `json:"created_at"`
}
