package models

import "time"

// User is the internal identity behind any number of platform links.
//
// Invariant: TokensUsedThisMonth >= 0. Created on first message from an
// unknown platform user; never deleted while a conversation or message
// still references it.
type User struct {
	ID                  string          `json:"id"`
	Permission          PermissionLevel `json:"permission"`
	TokenBudgetMonthly  *int64          `json:"token_budget_monthly,omitempty"`
	TokensUsedThisMonth int64           `json:"tokens_used_this_month"`
	UsageResetAt        time.Time       `json:"usage_reset_at"`
	CreatedAt           time.Time       `json:"created_at"`
}

// OverBudget reports whether the user has exhausted their monthly token
// budget. A nil budget means unlimited.
func (u *User) OverBudget() bool {
	if u == nil || u.TokenBudgetMonthly == nil {
		return false
	}
	return u.TokensUsedThisMonth >= *u.TokenBudgetMonthly
}

// PlatformLink resolves an external platform identity to an internal user.
//
// Unique on (Platform, PlatformUserID).
type PlatformLink struct {
	ID             string    `json:"id"`
	Platform       string    `json:"platform"`
	PlatformUserID string    `json:"platform_user_id"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Persona is a named system prompt plus an allow-list of tool modules and
// model settings, selected per (platform, server) scope.
//
// Invariant: at most one IsDefault=true per (Platform, PlatformServerID).
type Persona struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SystemPrompt     string    `json:"system_prompt"`
	AllowedModules   []string  `json:"allowed_modules"`
	DefaultModel     string    `json:"default_model"`
	MaxTokensRequest int       `json:"max_tokens_request"`
	Platform         string    `json:"platform"`
	PlatformServerID string    `json:"platform_server_id,omitempty"`
	IsDefault        bool      `json:"is_default"`
	CreatedAt        time.Time `json:"created_at"`
}

// AllowsModule reports whether the persona's allow-list includes module.
func (p *Persona) AllowsModule(module string) bool {
	if p == nil {
		return false
	}
	for _, m := range p.AllowedModules {
		if m == module {
			return true
		}
	}
	return false
}
