package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/pkg/models"
)

type pgUserStore struct {
	db *sql.DB
}

func (s *pgUserStore) Create(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, permission, token_budget_monthly, tokens_used_this_month, usage_reset_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		user.ID, string(user.Permission), user.TokenBudgetMonthly, user.TokensUsedThisMonth, user.UsageResetAt, user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *pgUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, permission, token_budget_monthly, tokens_used_this_month, usage_reset_at, created_at
		FROM users WHERE id = $1`, id)

	var u models.User
	var permission string
	if err := row.Scan(&u.ID, &permission, &u.TokenBudgetMonthly, &u.TokensUsedThisMonth, &u.UsageResetAt, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Permission = models.PermissionLevel(permission)
	return &u, nil
}

func (s *pgUserStore) Update(ctx context.Context, user *models.User) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET permission = $2, token_budget_monthly = $3, tokens_used_this_month = $4, usage_reset_at = $5
		WHERE id = $1`,
		user.ID, string(user.Permission), user.TokenBudgetMonthly, user.TokensUsedThisMonth, user.UsageResetAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

type pgPlatformLinkStore struct {
	db *sql.DB
}

func (s *pgPlatformLinkStore) FindOrCreate(ctx context.Context, platform, platformUserID string) (*models.PlatformLink, error) {
	link, err := s.Get(ctx, platform, platformUserID)
	if err == nil {
		return link, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	userID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, permission, tokens_used_this_month, usage_reset_at, created_at)
		VALUES ($1, 'user', 0, now(), now())`, userID); err != nil {
		return nil, fmt.Errorf("create user for platform link: %w", err)
	}

	linkID := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO platform_links (id, platform, platform_user_id, user_id, created_at)
		VALUES ($1,$2,$3,$4, now())`, linkID, platform, platformUserID, userID); err != nil {
		if isUniqueViolation(err) {
			// Raced with a concurrent FindOrCreate; fall through to a fresh read.
			if commitErr := tx.Rollback(); commitErr != nil && commitErr != sql.ErrTxDone {
				return nil, commitErr
			}
			return s.Get(ctx, platform, platformUserID)
		}
		return nil, fmt.Errorf("create platform link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit platform link: %w", err)
	}

	return s.Get(ctx, platform, platformUserID)
}

func (s *pgPlatformLinkStore) Get(ctx context.Context, platform, platformUserID string) (*models.PlatformLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, platform, platform_user_id, user_id, created_at
		FROM platform_links WHERE platform = $1 AND platform_user_id = $2`, platform, platformUserID)

	var link models.PlatformLink
	if err := row.Scan(&link.ID, &link.Platform, &link.PlatformUserID, &link.UserID, &link.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get platform link: %w", err)
	}
	return &link, nil
}
