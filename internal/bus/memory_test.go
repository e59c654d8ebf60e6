package bus

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBusPublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "notifications:discord")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	if err := b.Publish(ctx, "notifications:discord", []byte("hello")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sub.Channel():
		if string(msg.Payload) != "hello" {
			t.Fatalf("expected payload 'hello', got %q", msg.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryBusSetGetRoundTrip(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	if err := b.Set(ctx, "manifest:scheduler", []byte(`{"tools":[]}`), time.Hour); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	val, ok, err := b.Get(ctx, "manifest:scheduler")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok || string(val) != `{"tools":[]}` {
		t.Fatalf("expected cached manifest, got ok=%v val=%q", ok, val)
	}
}

func TestMemoryBusGetExpiresAfterTTL(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	if err := b.Set(ctx, "short-lived", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := b.Get(ctx, "short-lived")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Fatal("expected key to have expired")
	}
}
