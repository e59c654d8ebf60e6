package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/pkg/models"
)

// resolveUser maps a (platform, platformUserID) identity to an internal
// User, creating both the link and the user on first sight with the
// default permission level.
func resolveUser(ctx context.Context, users storage.UserStore, links storage.PlatformLinkStore, platform, platformUserID string) (*models.User, error) {
	link, err := links.FindOrCreate(ctx, platform, platformUserID)
	if err != nil {
		return nil, fmt.Errorf("resolve platform link: %w", err)
	}

	user, err := users.Get(ctx, link.UserID)
	if err == nil {
		return user, nil
	}
	if err != storage.ErrNotFound {
		return nil, fmt.Errorf("load user %s: %w", link.UserID, err)
	}

	user = &models.User{
		ID:           link.UserID,
		Permission:   models.PermissionUser,
		UsageResetAt: time.Now(),
		CreatedAt:    time.Now(),
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user %s: %w", link.UserID, err)
	}
	return user, nil
}

// resolvePersona resolves the persona for a (platform, server) scope,
// falling back to a bare-bones default persona when the store has none
// configured for either the server or the platform's global default.
func resolvePersona(ctx context.Context, personas storage.PersonaStore, platform, platformServerID string) (*models.Persona, error) {
	persona, err := personas.ResolveDefault(ctx, platform, platformServerID)
	if err == nil {
		return persona, nil
	}
	if err != storage.ErrNotFound {
		return nil, fmt.Errorf("resolve persona: %w", err)
	}
	return &models.Persona{
		ID:               uuid.NewString(),
		Name:             "default",
		SystemPrompt:     "You are a helpful assistant.",
		DefaultModel:     "",
		MaxTokensRequest: 4096,
		Platform:         platform,
		PlatformServerID: platformServerID,
		IsDefault:        true,
		CreatedAt:        time.Now(),
	}, nil
}
