package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/pkg/models"
)

type pgUserCredentialStore struct {
	db *sql.DB
}

func (s *pgUserCredentialStore) Upsert(ctx context.Context, cred *models.UserCredential) error {
	if cred == nil {
		return fmt.Errorf("credential is required")
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_credentials (id, user_id, service, key, encrypted_value, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id, service, key) DO UPDATE SET
			encrypted_value = EXCLUDED.encrypted_value, updated_at = EXCLUDED.updated_at`,
		cred.ID, cred.UserID, cred.Service, cred.Key, cred.EncryptedValue, cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user credential: %w", err)
	}
	return nil
}

func (s *pgUserCredentialStore) Get(ctx context.Context, userID, service, key string) (*models.UserCredential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, service, key, encrypted_value, created_at, updated_at
		FROM user_credentials WHERE user_id = $1 AND service = $2 AND key = $3`, userID, service, key)

	var c models.UserCredential
	if err := row.Scan(&c.ID, &c.UserID, &c.Service, &c.Key, &c.EncryptedValue, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user credential: %w", err)
	}
	return &c, nil
}

type pgErrorLogStore struct {
	db *sql.DB
}

func (s *pgErrorLogStore) Create(ctx context.Context, entry *models.ErrorLog) error {
	if entry == nil {
		return fmt.Errorf("error log entry is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_logs (id, service, category, tool_name, tool_args, message, stack, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, entry.Service, string(entry.Category), entry.ToolName, entry.ToolArgs,
		entry.Message, entry.Stack, string(entry.Status), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create error log: %w", err)
	}
	return nil
}
