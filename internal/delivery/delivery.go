// Package delivery subscribes to the shared bus's per-platform
// notification channels and routes each Notification to the adapter
// registered for its platform. There is no retry queue: a delivery
// failure is logged and the notification is dropped, since the sender
// (scheduler or geofence worker) can recreate it by rescheduling.
package delivery

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/relaycore/assistant-core/internal/bus"
	"github.com/relaycore/assistant-core/internal/observability"
	"github.com/relaycore/assistant-core/pkg/models"
)

// Deliverer sends a Notification to its (channel, thread) destination via
// a platform's native API.
type Deliverer interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// Router subscribes to notifications:<platform> for every registered
// platform and fans each message out to its Deliverer.
type Router struct {
	bus        bus.Bus
	deliverers map[string]Deliverer
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New constructs a Router. deliverers maps platform name (e.g. "discord")
// to the adapter responsible for delivering its notifications. metrics may
// be nil to disable delivery-outcome instrumentation.
func New(b bus.Bus, deliverers map[string]Deliverer, metrics *observability.Metrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{bus: b, deliverers: deliverers, metrics: metrics, logger: logger}
}

// Run subscribes to every registered platform's notification channel and
// blocks, dispatching messages until ctx is cancelled or the subscription
// is closed.
func (r *Router) Run(ctx context.Context) error {
	channels := make([]string, 0, len(r.deliverers))
	for platform := range r.deliverers {
		channels = append(channels, "notifications:"+platform)
	}
	if len(channels) == 0 {
		<-ctx.Done()
		return nil
	}

	sub, err := r.bus.Subscribe(ctx, channels...)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Router) handle(ctx context.Context, msg bus.Message) {
	var n models.Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		r.logger.Error("decode notification failed", "channel", msg.Channel, "error", err)
		return
	}

	deliverer, ok := r.deliverers[n.Platform]
	if !ok {
		r.logger.Error("no deliverer registered for platform", "platform", n.Platform)
		return
	}

	status := "success"
	if err := deliverer.Deliver(ctx, n); err != nil {
		status = "error"
		r.logger.Error("notification delivery failed",
			"platform", n.Platform, "channel", n.PlatformChannelID, "job_id", n.JobID, "error", err)
	}
	if r.metrics != nil {
		r.metrics.NotificationsDelivered.WithLabelValues(n.Platform, status).Inc()
	}
}
