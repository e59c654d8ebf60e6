package models

import "time"

// UserCredential is a symmetrically-encrypted secret scoped to a user and
// an external service, unique on (UserID, Service, Key).
//
// EncryptedValue is never exposed in plaintext outside the decrypt call
// site (see internal/credentials).
type UserCredential struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Service        string    `json:"service"`
	Key            string    `json:"key"`
	EncryptedValue []byte    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ErrorStatus is the triage state of an ErrorLog row.
type ErrorStatus string

const (
	ErrorOpen      ErrorStatus = "open"
	ErrorDismissed ErrorStatus = "dismissed"
	ErrorResolved  ErrorStatus = "resolved"
)

// ErrorCategory classifies a failure for the error handling taxonomy in
// spec.md §7.
type ErrorCategory string

const (
	ErrorToolExecution    ErrorCategory = "tool_execution"
	ErrorLLMCall          ErrorCategory = "llm_call"
	ErrorAgentLoop        ErrorCategory = "agent_loop"
	ErrorModuleUnreachable ErrorCategory = "module_unreachable"
	ErrorInvalidTool      ErrorCategory = "invalid_tool"
	ErrorBudgetExceeded   ErrorCategory = "budget_exceeded"
	ErrorAuth             ErrorCategory = "auth"
	ErrorValidation       ErrorCategory = "validation"
	ErrorNotFound         ErrorCategory = "not_found"
	ErrorInternal         ErrorCategory = "internal"
)

// ErrorLog is a centralized, append-only error capture row.
type ErrorLog struct {
	ID         string        `json:"id"`
	Service    string        `json:"service"`
	Category   ErrorCategory `json:"category"`
	ToolName   string        `json:"tool_name,omitempty"`
	ToolArgs   string        `json:"tool_args,omitempty"`
	Message    string        `json:"message"`
	Stack      string        `json:"stack,omitempty"`
	Status     ErrorStatus   `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}
