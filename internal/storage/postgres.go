package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// NewPostgresStoreFromDSN opens a Postgres connection pool and wires every
// store interface against it. The database is expected to carry the
// pgvector extension for MemorySummary embeddings.
func NewPostgresStoreFromDSN(dsn string, config *PostgresConfig) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return Store{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return Store{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return Store{}, fmt.Errorf("ping database: %w", err)
	}

	return Store{
		Users:              &pgUserStore{db: db},
		PlatformLinks:      &pgPlatformLinkStore{db: db},
		Personas:           &pgPersonaStore{db: db},
		Conversations:      &pgConversationStore{db: db},
		Messages:           &pgMessageStore{db: db},
		MemorySummaries:    &pgMemorySummaryStore{db: db},
		TokenLogs:          &pgTokenLogStore{db: db},
		ScheduledJobs:      &pgScheduledJobStore{db: db},
		ScheduledWorkflows: &pgScheduledWorkflowStore{db: db},
		LocationReminders:  &pgLocationReminderStore{db: db},
		UserLocations:      &pgUserLocationStore{db: db},
		UserNamedPlaces:    &pgUserNamedPlaceStore{db: db},
		UserCredentials:    &pgUserCredentialStore{db: db},
		ErrorLogs:          &pgErrorLogStore{db: db},
		closer:             db.Close,
	}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func fromNullString(ns sql.NullString) string {
	if !ns.Valid {
		return ""
	}
	return ns.String
}
