// Package conversation implements conversation lifecycle: locating or
// creating the active conversation for a (user, platform, channel,
// thread) tuple, appending messages, and windowing message history to a
// token budget without splitting tool_call/tool_result pairs.
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/pkg/models"
)

// Service implements the conversation core.
type Service struct {
	conversations storage.ConversationStore
	messages      storage.MessageStore
	inactivityWindow time.Duration
}

// New constructs a conversation Service.
func New(conversations storage.ConversationStore, messages storage.MessageStore, inactivityWindow time.Duration) *Service {
	return &Service{conversations: conversations, messages: messages, inactivityWindow: inactivityWindow}
}

// LocateOrCreate finds the most recent non-summarized conversation for
// (userID, platform, channelID, threadID) whose LastActiveAt falls within
// the inactivity window; otherwise it inserts a new one.
func (s *Service) LocateOrCreate(ctx context.Context, userID, platform, channelID, threadID string) (*models.Conversation, error) {
	existing, err := s.conversations.FindActive(ctx, userID, platform, channelID, threadID)
	if err == nil {
		if time.Since(existing.LastActiveAt) <= s.inactivityWindow {
			existing.LastActiveAt = time.Now()
			if err := s.conversations.Update(ctx, existing); err != nil {
				return nil, fmt.Errorf("conversation: touch active conversation: %w", err)
			}
			return existing, nil
		}
	} else if err != storage.ErrNotFound {
		return nil, fmt.Errorf("conversation: find active: %w", err)
	}

	conv := &models.Conversation{
		ID:                uuid.NewString(),
		UserID:            userID,
		Platform:          platform,
		PlatformChannelID: channelID,
		PlatformThreadID:  threadID,
		LastActiveAt:      time.Now(),
		CreatedAt:         time.Now(),
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("conversation: create: %w", err)
	}
	return conv, nil
}

// AppendMessage inserts a message and advances the conversation's
// LastActiveAt.
func (s *Service) AppendMessage(ctx context.Context, conv *models.Conversation, role models.MessageRole, content string, tokenCount int, model string) (*models.Message, error) {
	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           role,
		Content:        content,
		TokenCount:     tokenCount,
		Model:          model,
		CreatedAt:      time.Now(),
	}
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("conversation: append message: %w", err)
	}

	conv.LastActiveAt = msg.CreatedAt
	if err := s.conversations.Update(ctx, conv); err != nil {
		return nil, fmt.Errorf("conversation: advance last active: %w", err)
	}
	return msg, nil
}

// AppendToolExchange appends a bound tool_call/tool_result pair back to
// back so window() sees them adjacent. The two appends are separate store
// writes, not one transaction: if the second fails, the tool_call is
// already stored.
func (s *Service) AppendToolExchange(ctx context.Context, conv *models.Conversation, toolUseID, toolName string, callPayload, resultPayload []byte, resultIsError bool) error {
	call := &models.Message{
		ID: uuid.NewString(), ConversationID: conv.ID, Role: models.RoleToolCall,
		ToolUseID: toolUseID, ToolName: toolName, ToolPayload: callPayload, CreatedAt: time.Now(),
	}
	if err := s.messages.Append(ctx, call); err != nil {
		return fmt.Errorf("conversation: append tool_call: %w", err)
	}

	result := &models.Message{
		ID: uuid.NewString(), ConversationID: conv.ID, Role: models.RoleToolResult,
		ToolUseID: toolUseID, ToolPayload: resultPayload, CreatedAt: time.Now(),
	}
	if resultIsError {
		result.Content = "error"
	}
	if err := s.messages.Append(ctx, result); err != nil {
		return fmt.Errorf("conversation: append tool_result: %w", err)
	}

	conv.LastActiveAt = result.CreatedAt
	return s.conversations.Update(ctx, conv)
}

// estimateTokens is a cheap, provider-independent heuristic (~4 characters
// per token) used only for windowing; the authoritative count for billing
// comes from the LLM response itself.
func estimateTokens(msg *models.Message) int {
	if msg.TokenCount > 0 {
		return msg.TokenCount
	}
	n := len(msg.Content)/4 + 1
	return n
}

// Window returns the conversation's full message history if it already
// fits tokenBudget, else the tail of messages whose cumulative estimated
// token count fits, preserving order and never splitting a
// tool_call/tool_result pair bound by ToolUseID.
func (s *Service) Window(ctx context.Context, conv *models.Conversation, tokenBudget int) ([]*models.Message, error) {
	all, err := s.messages.ListByConversation(ctx, conv.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	return window(all, tokenBudget), nil
}

func window(all []*models.Message, tokenBudget int) []*models.Message {
	if len(all) == 0 {
		return all
	}

	total := 0
	cut := 0 // first index included in the window
	for i := len(all) - 1; i >= 0; i-- {
		total += estimateTokens(all[i])
		if total > tokenBudget && i != len(all)-1 {
			cut = i + 1
			break
		}
		cut = i
	}

	// Never start the window on a tool_result whose matching tool_call was
	// trimmed away: walk cut forward past any orphaned tool_result/tool_call.
	for cut < len(all) {
		msg := all[cut]
		if msg.Role != models.RoleToolResult && msg.Role != models.RoleToolCall {
			break
		}
		if msg.Role == models.RoleToolCall && cut+1 < len(all) && all[cut+1].ToolUseID == msg.ToolUseID {
			break // call immediately followed by its result: pair is intact
		}
		cut++
	}

	return all[cut:]
}
