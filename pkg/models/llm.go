package models

// StopReason describes why an LLM call stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// LLMResponse is the canonical result of a chat completion call, common to
// every provider adapter.
type LLMResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	Model        string     `json:"model"`
	StopReason   StopReason `json:"stop_reason"`
}

// ChatMessage is one entry in the canonical message sequence sent to an
// LLM provider. ToolUseID binds a tool_call entry to its tool_result.
type ChatMessage struct {
	Role        MessageRole `json:"role"`
	Content     string      `json:"content,omitempty"`
	ToolName    string      `json:"tool_name,omitempty"`
	ToolUseID   string      `json:"tool_use_id,omitempty"`
	Arguments   string      `json:"arguments,omitempty"`
	ResultBody  string      `json:"result_body,omitempty"`
	IsError     bool        `json:"is_error,omitempty"`
}
