package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/relaycore/assistant-core/pkg/models"
)

type pgLocationReminderStore struct {
	db *sql.DB
}

func (s *pgLocationReminderStore) Create(ctx context.Context, r *models.LocationReminder) error {
	if r == nil {
		return fmt.Errorf("reminder is required")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO location_reminders
			(id, user_id, place_name, message, lat, lng, radius_meters, trigger_on, mode,
			 cooldown_seconds, cooldown_until, expires_at, trigger_count, was_inside,
			 platform, platform_channel_id, platform_thread_id, status, created_at, triggered_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		r.ID, r.UserID, r.PlaceName, r.Message, r.Lat, r.Lng, r.RadiusMeters, string(r.TriggerOn), string(r.Mode),
		r.CooldownSeconds, r.CooldownUntil, r.ExpiresAt, r.TriggerCount, r.WasInside,
		r.Platform, r.PlatformChannelID, r.PlatformThreadID, string(r.Status), r.CreatedAt, r.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("create location reminder: %w", err)
	}
	return nil
}

func (s *pgLocationReminderStore) Update(ctx context.Context, r *models.LocationReminder) error {
	if r == nil {
		return fmt.Errorf("reminder is required")
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE location_reminders
		SET cooldown_until = $2, trigger_count = $3, was_inside = $4, status = $5, triggered_at = $6
		WHERE id = $1`,
		r.ID, r.CooldownUntil, r.TriggerCount, r.WasInside, string(r.Status), r.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("update location reminder: %w", err)
	}
	return nil
}

func (s *pgLocationReminderStore) ListActiveByUser(ctx context.Context) (map[string][]*models.LocationReminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, place_name, message, lat, lng, radius_meters, trigger_on, mode,
		       cooldown_seconds, cooldown_until, expires_at, trigger_count, was_inside,
		       platform, platform_channel_id, platform_thread_id, status, created_at, triggered_at
		FROM location_reminders WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("list active reminders: %w", err)
	}
	defer rows.Close()

	out := map[string][]*models.LocationReminder{}
	for rows.Next() {
		var r models.LocationReminder
		var triggerOn, mode, status string
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.PlaceName, &r.Message, &r.Lat, &r.Lng, &r.RadiusMeters, &triggerOn, &mode,
			&r.CooldownSeconds, &r.CooldownUntil, &r.ExpiresAt, &r.TriggerCount, &r.WasInside,
			&r.Platform, &r.PlatformChannelID, &r.PlatformThreadID, &status, &r.CreatedAt, &r.TriggeredAt,
		); err != nil {
			return nil, fmt.Errorf("scan location reminder: %w", err)
		}
		r.TriggerOn = models.TriggerOn(triggerOn)
		r.Mode = models.ReminderMode(mode)
		r.Status = models.ReminderStatus(status)
		out[r.UserID] = append(out[r.UserID], &r)
	}
	return out, rows.Err()
}

type pgUserLocationStore struct {
	db *sql.DB
}

func (s *pgUserLocationStore) Upsert(ctx context.Context, loc *models.UserLocation) error {
	if loc == nil {
		return fmt.Errorf("location is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_locations (user_id, lat, lng, accuracy, speed, heading, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			lat = EXCLUDED.lat, lng = EXCLUDED.lng, accuracy = EXCLUDED.accuracy,
			speed = EXCLUDED.speed, heading = EXCLUDED.heading, updated_at = EXCLUDED.updated_at`,
		loc.UserID, loc.Lat, loc.Lng, loc.Accuracy, loc.Speed, loc.Heading, loc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user location: %w", err)
	}
	return nil
}

func (s *pgUserLocationStore) Get(ctx context.Context, userID string) (*models.UserLocation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, lat, lng, accuracy, speed, heading, updated_at
		FROM user_locations WHERE user_id = $1`, userID)

	var loc models.UserLocation
	if err := row.Scan(&loc.UserID, &loc.Lat, &loc.Lng, &loc.Accuracy, &loc.Speed, &loc.Heading, &loc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user location: %w", err)
	}
	return &loc, nil
}

type pgUserNamedPlaceStore struct {
	db *sql.DB
}

func (s *pgUserNamedPlaceStore) Create(ctx context.Context, place *models.UserNamedPlace) error {
	if place == nil {
		return fmt.Errorf("place is required")
	}
	if place.ID == "" {
		place.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_named_places (id, user_id, name, lat, lng, address)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		place.ID, place.UserID, place.Name, place.Lat, place.Lng, place.Address,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create user named place: %w", err)
	}
	return nil
}

func (s *pgUserNamedPlaceStore) FindByName(ctx context.Context, userID, name string) (*models.UserNamedPlace, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, lat, lng, address
		FROM user_named_places WHERE user_id = $1 AND name = $2`, userID, name)

	var place models.UserNamedPlace
	if err := row.Scan(&place.ID, &place.UserID, &place.Name, &place.Lat, &place.Lng, &place.Address); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user named place: %w", err)
	}
	return &place, nil
}
