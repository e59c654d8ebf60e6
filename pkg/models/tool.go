package models

import "encoding/json"

// ToolParameter describes one named parameter of a tool's input schema.
type ToolParameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// CredentialRequirement names the stored UserCredential a tool needs
// decrypted and injected into its arguments before dispatch.
type CredentialRequirement struct {
	Service  string `json:"service"`
	Key      string `json:"key"`
	ArgName  string `json:"arg_name"`
}

// ToolDefinition is the canonical, provider-independent description of a
// tool a module exposes.
type ToolDefinition struct {
	Name               string                  `json:"name"`
	Description        string                  `json:"description"`
	Parameters         []ToolParameter         `json:"parameters"`
	RequiredPermission PermissionLevel         `json:"required_permission"`
	RequiredCredential *CredentialRequirement  `json:"required_credential,omitempty"`
}

// ModuleManifest is a module's self-description, returned from its
// GET /manifest endpoint.
type ModuleManifest struct {
	ModuleName  string           `json:"module_name"`
	Description string           `json:"description"`
	Tools       []ToolDefinition `json:"tools"`
}

// ToolCall is the router-normalized shape of an LLM's request to execute
// a tool, independent of provider.
type ToolCall struct {
	ToolName   string          `json:"tool_name"`
	Arguments  json.RawMessage `json:"arguments"`
	ToolUseID  string          `json:"tool_use_id"`
}

// ToolResult is a module's structured response to a ToolCall, always
// carrying a success flag so the agent loop never has to interpret a
// language-specific error type from across an HTTP boundary.
type ToolResult struct {
	ToolName string          `json:"tool_name"`
	Success  bool            `json:"success"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}
