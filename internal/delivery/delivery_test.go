package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaycore/assistant-core/internal/bus"
	"github.com/relaycore/assistant-core/pkg/models"
)

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []models.Notification
	err       error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, n models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, n)
	return nil
}

func (d *fakeDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.delivered)
}

func TestRunRoutesNotificationToPlatformDeliverer(t *testing.T) {
	b := bus.NewMemoryBus()
	discord := &fakeDeliverer{}
	router := New(b, map[string]Deliverer{"discord": discord}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)

	time.Sleep(20 * time.Millisecond) // let the subscription establish

	payload, _ := json.Marshal(models.Notification{Platform: "discord", PlatformChannelID: "c1", Content: "hi"})
	if err := b.Publish(context.Background(), "notifications:discord", payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for discord.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if discord.count() != 1 {
		t.Fatalf("expected 1 delivered notification, got %d", discord.count())
	}
}

func TestHandleLogsAndDropsOnDeliveryFailure(t *testing.T) {
	b := bus.NewMemoryBus()
	failing := &fakeDeliverer{err: errors.New("platform unavailable")}
	router := New(b, map[string]Deliverer{"discord": failing}, nil, nil)

	payload, _ := json.Marshal(models.Notification{Platform: "discord", PlatformChannelID: "c1", Content: "hi"})
	router.handle(context.Background(), bus.Message{Channel: "notifications:discord", Payload: payload})

	if failing.count() != 0 {
		t.Fatalf("expected no successful deliveries recorded, got %d", failing.count())
	}
}

func TestHandleDropsNotificationForUnregisteredPlatform(t *testing.T) {
	b := bus.NewMemoryBus()
	router := New(b, map[string]Deliverer{}, nil, nil)

	payload, _ := json.Marshal(models.Notification{Platform: "slack", PlatformChannelID: "c1", Content: "hi"})
	router.handle(context.Background(), bus.Message{Channel: "notifications:slack", Payload: payload})
}
