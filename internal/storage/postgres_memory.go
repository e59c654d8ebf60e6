package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/pkg/models"
)

type pgMemorySummaryStore struct {
	db *sql.DB
}

func (s *pgMemorySummaryStore) Create(ctx context.Context, summary *models.MemorySummary) error {
	if summary == nil {
		return fmt.Errorf("summary is required")
	}
	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_summaries (id, user_id, conversation_id, summary, embedding, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		summary.ID, summary.UserID, summary.ConversationID, summary.Summary,
		encodeEmbedding(summary.Embedding), summary.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create memory summary: %w", err)
	}
	return nil
}

// RecallByEmbedding orders by ascending pgvector cosine distance (<=>),
// i.e. nearest neighbors first.
func (s *pgMemorySummaryStore) RecallByEmbedding(ctx context.Context, userID string, embedding []float32, topK int) ([]*models.MemorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, conversation_id, summary, embedding, created_at
		FROM memory_summaries
		WHERE user_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2::vector ASC
		LIMIT $3`, userID, encodeEmbedding(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("recall by embedding: %w", err)
	}
	defer rows.Close()
	return scanMemorySummaries(rows)
}

func (s *pgMemorySummaryStore) RecallRecent(ctx context.Context, userID string, topK int) ([]*models.MemorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, conversation_id, summary, embedding, created_at
		FROM memory_summaries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, topK)
	if err != nil {
		return nil, fmt.Errorf("recall recent: %w", err)
	}
	defer rows.Close()
	return scanMemorySummaries(rows)
}

func scanMemorySummaries(rows *sql.Rows) ([]*models.MemorySummary, error) {
	var out []*models.MemorySummary
	for rows.Next() {
		var m models.MemorySummary
		var embeddingStr sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.ConversationID, &m.Summary, &embeddingStr, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory summary: %w", err)
		}
		if embeddingStr.Valid {
			m.Embedding = decodeEmbedding(embeddingStr.String)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// encodeEmbedding renders a vector in pgvector's text input format
// ("[0.1,0.2,...]"), or NULL when the embedding failed upstream.
func encodeEmbedding(embedding []float32) sql.NullString {
	if len(embedding) == 0 {
		return sql.NullString{}
	}
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return sql.NullString{String: "[" + strings.Join(parts, ",") + "]", Valid: true}
}

func decodeEmbedding(s string) []float32 {
	s = strings.Trim(s, "[]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			continue
		}
		out = append(out, float32(v))
	}
	return out
}

type pgTokenLogStore struct {
	db *sql.DB
}

func (s *pgTokenLogStore) Create(ctx context.Context, log *models.TokenLog) error {
	if log == nil {
		return fmt.Errorf("token log is required")
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_logs (id, user_id, conversation_id, model, input_tokens, output_tokens, estimated_usd, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		log.ID, log.UserID, log.ConversationID, log.Model, log.InputTokens, log.OutputTokens, log.EstimatedUSD, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create token log: %w", err)
	}
	return nil
}

func (s *pgTokenLogStore) SumTokensThisMonth(ctx context.Context, userID string) (int64, error) {
	var sum sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM token_logs tl
		JOIN users u ON u.id = tl.user_id
		WHERE tl.user_id = $1 AND tl.created_at >= u.usage_reset_at`, userID)
	if err := row.Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum tokens this month: %w", err)
	}
	return sum.Int64, nil
}
