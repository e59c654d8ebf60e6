package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/relaycore/assistant-core/pkg/models"
)

type pgPersonaStore struct {
	db *sql.DB
}

func (s *pgPersonaStore) Get(ctx context.Context, id string) (*models.Persona, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, system_prompt, allowed_modules, default_model, max_tokens_request,
		       platform, platform_server_id, is_default, created_at
		FROM personas WHERE id = $1`, id)
	return scanPersona(row)
}

func (s *pgPersonaStore) ResolveDefault(ctx context.Context, platform, platformServerID string) (*models.Persona, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, system_prompt, allowed_modules, default_model, max_tokens_request,
		       platform, platform_server_id, is_default, created_at
		FROM personas
		WHERE is_default = true AND platform = $1 AND platform_server_id = $2
		LIMIT 1`, platform, platformServerID)
	persona, err := scanPersona(row)
	if err == nil {
		return persona, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT id, name, system_prompt, allowed_modules, default_model, max_tokens_request,
		       platform, platform_server_id, is_default, created_at
		FROM personas
		WHERE is_default = true AND (platform_server_id IS NULL OR platform_server_id = '')
		LIMIT 1`)
	return scanPersona(row)
}

type personaScanner interface {
	Scan(dest ...any) error
}

func scanPersona(row personaScanner) (*models.Persona, error) {
	var p models.Persona
	var allowedModules []string
	if err := row.Scan(
		&p.ID, &p.Name, &p.SystemPrompt, pq.Array(&allowedModules), &p.DefaultModel, &p.MaxTokensRequest,
		&p.Platform, &p.PlatformServerID, &p.IsDefault, &p.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get persona: %w", err)
	}
	p.AllowedModules = allowedModules
	return &p, nil
}
