package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/pkg/models"
)

type pgConversationStore struct {
	db *sql.DB
}

func (s *pgConversationStore) Create(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return fmt.Errorf("conversation is required")
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(id, user_id, platform, platform_channel_id, platform_thread_id, last_active_at,
			 is_summarized, title, last_read_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		conv.ID, conv.UserID, conv.Platform, conv.PlatformChannelID, nullString(conv.PlatformThreadID),
		conv.LastActiveAt, conv.IsSummarized, conv.Title, conv.LastReadAt, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *pgConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, platform, platform_channel_id, platform_thread_id, last_active_at,
		       is_summarized, title, last_read_at, created_at
		FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *pgConversationStore) FindActive(ctx context.Context, userID, platform, channelID, threadID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, platform, platform_channel_id, platform_thread_id, last_active_at,
		       is_summarized, title, last_read_at, created_at
		FROM conversations
		WHERE user_id = $1 AND platform = $2 AND platform_channel_id = $3
		  AND platform_thread_id IS NOT DISTINCT FROM $4
		  AND is_summarized = false
		ORDER BY last_active_at DESC
		LIMIT 1`, userID, platform, channelID, nullString(threadID))
	return scanConversation(row)
}

func (s *pgConversationStore) Update(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return fmt.Errorf("conversation is required")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET last_active_at = $2, is_summarized = $3, title = $4, last_read_at = $5
		WHERE id = $1`,
		conv.ID, conv.LastActiveAt, conv.IsSummarized, conv.Title, conv.LastReadAt,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (s *pgConversationStore) ListStaleUnsummarized(ctx context.Context, cutoff time.Time) ([]*models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, platform, platform_channel_id, platform_thread_id, last_active_at,
		       is_summarized, title, last_read_at, created_at
		FROM conversations
		WHERE is_summarized = false AND last_active_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

type conversationScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row conversationScanner) (*models.Conversation, error) {
	var c models.Conversation
	var threadID sql.NullString
	if err := row.Scan(
		&c.ID, &c.UserID, &c.Platform, &c.PlatformChannelID, &threadID, &c.LastActiveAt,
		&c.IsSummarized, &c.Title, &c.LastReadAt, &c.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.PlatformThreadID = fromNullString(threadID)
	return &c, nil
}

type pgMessageStore struct {
	db *sql.DB
}

func (s *pgMessageStore) Append(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return fmt.Errorf("message is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, role, content, tool_use_id, tool_payload, token_count, model, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, nullString(msg.ToolUseID),
		[]byte(msg.ToolPayload), msg.TokenCount, msg.Model, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *pgMessageStore) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, tool_use_id, tool_payload, token_count, model, created_at
		FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`
	args := []any{conversationID}
	if limit > 0 {
		query = `
		SELECT * FROM (
			SELECT id, conversation_id, role, content, tool_use_id, tool_payload, token_count, model, created_at
			FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		var role string
		var toolUseID sql.NullString
		var payload []byte
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &toolUseID, &payload, &m.TokenCount, &m.Model, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.MessageRole(role)
		m.ToolUseID = fromNullString(toolUseID)
		m.ToolPayload = payload
		out = append(out, &m)
	}
	return out, rows.Err()
}
