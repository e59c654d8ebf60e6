// Package geofence runs the location-triggered reminder worker: a tick
// loop that evaluates each user's active reminders against their latest
// known position and publishes a Notification on enter/exit crossing.
package geofence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/relaycore/assistant-core/internal/bus"
	"github.com/relaycore/assistant-core/internal/errorlog"
	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/internal/storage"
	"github.com/relaycore/assistant-core/pkg/models"
)

// Config tunes the tick loop.
type Config struct {
	// TickInterval is how often reminders are evaluated. Default: 30s.
	TickInterval time.Duration
	// StalenessThreshold is how old a UserLocation may be before its
	// owner's reminders are skipped for this tick. Default: 10m.
	StalenessThreshold time.Duration
}

func sanitizeConfig(cfg Config) Config {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 10 * time.Minute
	}
	return cfg
}

// Deps bundles the geofence worker's collaborators.
type Deps struct {
	Reminders ReminderStore
	Locations LocationStore
	Bus       bus.Bus
	ErrorLogs *errorlog.Service
	Metrics   *observability.Metrics // nil disables trigger instrumentation
}

// ReminderStore is the subset of storage.LocationReminderStore the worker
// needs, named locally so tests can supply a narrower fake.
type ReminderStore interface {
	Update(ctx context.Context, r *models.LocationReminder) error
	ListActiveByUser(ctx context.Context) (map[string][]*models.LocationReminder, error)
}

// LocationStore is the subset of storage.UserLocationStore the worker needs.
type LocationStore interface {
	Get(ctx context.Context, userID string) (*models.UserLocation, error)
}

// Worker runs the geofence tick loop.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

// New constructs a geofence Worker.
func New(deps Deps, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{deps: deps, cfg: sanitizeConfig(cfg), logger: logger}
}

// Run blocks, ticking until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	now := time.Now()
	byUser, err := w.deps.Reminders.ListActiveByUser(ctx)
	if err != nil {
		w.logger.Error("list active reminders failed", "error", err)
		return
	}

	for userID, reminders := range byUser {
		loc, err := w.deps.Locations.Get(ctx, userID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				w.logger.Error("load user location failed", "user_id", userID, "error", err)
			}
			continue
		}
		if loc.Stale(now, w.cfg.StalenessThreshold) {
			continue
		}
		for _, r := range reminders {
			w.evaluateReminder(ctx, r, loc, now)
		}
	}
}

func (w *Worker) evaluateReminder(ctx context.Context, r *models.LocationReminder, loc *models.UserLocation, now time.Time) {
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		r.Status = models.ReminderExpired
		if err := w.deps.Reminders.Update(ctx, r); err != nil {
			w.logger.Error("update expired reminder failed", "reminder_id", r.ID, "error", err)
		}
		return
	}
	if r.CooldownUntil != nil && r.CooldownUntil.After(now) {
		return
	}

	distance := haversineMeters(r.Lat, r.Lng, loc.Lat, loc.Lng)
	inside := distance <= r.RadiusMeters

	var triggered bool
	switch r.TriggerOn {
	case models.TriggerEnter:
		triggered = inside && !r.WasInside
	case models.TriggerExit:
		triggered = !inside && r.WasInside
	}
	r.WasInside = inside

	if !triggered {
		if err := w.deps.Reminders.Update(ctx, r); err != nil {
			w.logger.Error("update reminder inside-bit failed", "reminder_id", r.ID, "error", err)
		}
		return
	}

	r.TriggerCount++
	w.publish(ctx, r)
	if w.deps.Metrics != nil {
		w.deps.Metrics.GeofenceTriggersTotal.WithLabelValues(string(r.TriggerOn)).Inc()
	}

	switch r.Mode {
	case models.ReminderOnce:
		r.Status = models.ReminderTriggered
		r.TriggeredAt = &now
	case models.ReminderPersistent:
		until := now.Add(time.Duration(r.CooldownSeconds) * time.Second)
		r.CooldownUntil = &until
	}

	if err := w.deps.Reminders.Update(ctx, r); err != nil {
		w.logger.Error("update triggered reminder failed", "reminder_id", r.ID, "error", err)
	}
}

func (w *Worker) publish(ctx context.Context, r *models.LocationReminder) {
	if !r.RoutingComplete() {
		if w.deps.ErrorLogs != nil {
			w.deps.ErrorLogs.Record(ctx, errorlog.Entry{
				Service: "geofence", Category: models.ErrorValidation,
				Message: "reminder triggered with incomplete routing, dropping notification",
			})
		}
		return
	}

	userID := r.UserID
	reminderID := r.ID
	payload, err := json.Marshal(models.Notification{
		Platform: r.Platform, PlatformChannelID: r.PlatformChannelID, PlatformThreadID: r.PlatformThreadID,
		Content: r.Message, UserID: &userID, JobID: &reminderID,
	})
	if err != nil {
		w.logger.Error("marshal notification failed", "reminder_id", r.ID, "error", err)
		return
	}
	channel := "notifications:" + r.Platform
	if err := w.deps.Bus.Publish(ctx, channel, payload); err != nil {
		w.logger.Error("publish notification failed", "reminder_id", r.ID, "channel", channel, "error", err)
	}
}
