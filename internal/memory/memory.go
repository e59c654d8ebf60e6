// Package memory implements the summarization tick (closing out idle
// conversations into an embedded MemorySummary) and semantic recall over
// those summaries for the agent loop's long-term memory.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/internal/llmrouter"
	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/pkg/models"
)

const summarizeSystemPrompt = "Summarize the following conversation transcript in a few concise sentences, preserving names, decisions, and facts the user would expect to be remembered."

// Service implements conversation summarization and semantic recall.
type Service struct {
	conversations storage.ConversationStore
	messages      storage.MessageStore
	summaries     storage.MemorySummaryStore
	tokenLogs     storage.TokenLogStore
	router        *llmrouter.Router

	summarizeAfterIdle time.Duration
	maxTranscriptChars int
	recallTopK         int
	summarizeModel     string

	logger *slog.Logger
}

// Config configures a memory Service.
type Config struct {
	SummarizeAfterIdle time.Duration
	MaxTranscriptChars int
	RecallTopK         int
	SummarizeModel     string
}

// New constructs a memory Service.
func New(
	conversations storage.ConversationStore,
	messages storage.MessageStore,
	summaries storage.MemorySummaryStore,
	tokenLogs storage.TokenLogStore,
	router *llmrouter.Router,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	maxChars := cfg.MaxTranscriptChars
	if maxChars <= 0 {
		maxChars = 12000
	}
	topK := cfg.RecallTopK
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		conversations:      conversations,
		messages:           messages,
		summaries:          summaries,
		tokenLogs:          tokenLogs,
		router:             router,
		summarizeAfterIdle: cfg.SummarizeAfterIdle,
		maxTranscriptChars: maxChars,
		recallTopK:         topK,
		summarizeModel:     cfg.SummarizeModel,
		logger:             logger,
	}
}

// Tick finds conversations idle past summarizeAfterIdle and summarizes up
// to maxConversations of them.
func (s *Service) Tick(ctx context.Context, maxConversations int) error {
	cutoff := time.Now().Add(-s.summarizeAfterIdle)
	stale, err := s.conversations.ListStaleUnsummarized(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("memory: list stale conversations: %w", err)
	}

	for i, conv := range stale {
		if maxConversations > 0 && i >= maxConversations {
			break
		}
		if err := s.summarizeOne(ctx, conv); err != nil {
			s.logger.Error("conversation summarization failed", "conversation_id", conv.ID, "error", err)
		}
	}
	return nil
}

func (s *Service) summarizeOne(ctx context.Context, conv *models.Conversation) error {
	msgs, err := s.messages.ListByConversation(ctx, conv.ID, 0)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	if len(msgs) == 0 {
		conv.IsSummarized = true
		return s.conversations.Update(ctx, conv)
	}

	transcript := renderTranscript(msgs, s.maxTranscriptChars)

	resp, err := s.router.Chat(ctx, llmrouter.ChatRequest{
		Model: s.summarizeModel,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: summarizeSystemPrompt},
			{Role: models.RoleUser, Content: transcript},
		},
		MaxTokens: 512,
	})
	if err != nil {
		return fmt.Errorf("summarize via llm: %w", err)
	}

	if s.tokenLogs != nil {
		_ = s.tokenLogs.Create(ctx, &models.TokenLog{
			ID: uuid.NewString(), UserID: conv.UserID, ConversationID: conv.ID,
			Model: resp.Model, InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens,
			CreatedAt: time.Now(),
		})
	}

	summary := &models.MemorySummary{
		ID: uuid.NewString(), UserID: conv.UserID, ConversationID: conv.ID,
		Summary: resp.Content, CreatedAt: time.Now(),
	}

	if embedding, err := s.router.Embed(ctx, llmrouter.EmbedRequest{Text: resp.Content}); err != nil {
		s.logger.Warn("memory summary embed failed, storing without embedding", "conversation_id", conv.ID, "error", err)
	} else {
		summary.Embedding = embedding
	}

	if err := s.summaries.Create(ctx, summary); err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	conv.IsSummarized = true
	return s.conversations.Update(ctx, conv)
}

func renderTranscript(msgs []*models.Message, maxChars int) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	transcript := b.String()
	if len(transcript) > maxChars {
		transcript = transcript[len(transcript)-maxChars:]
	}
	return transcript
}

// Recall returns up to topK relevant memory summaries for userID given
// query. It embeds query and orders by ascending cosine distance; if
// embedding fails it falls back to the topK most recent summaries.
func (s *Service) Recall(ctx context.Context, userID, query string) ([]*models.MemorySummary, error) {
	embedding, err := s.router.Embed(ctx, llmrouter.EmbedRequest{Text: query})
	if err != nil {
		s.logger.Warn("memory recall embed failed, falling back to most recent", "user_id", userID, "error", err)
		return s.summaries.RecallRecent(ctx, userID, s.recallTopK)
	}
	return s.summaries.RecallByEmbedding(ctx, userID, embedding, s.recallTopK)
}
