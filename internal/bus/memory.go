package bus

import (
	"context"
	"sync"
	"time"
)

// MemoryBus is a Bus backed entirely by in-process state, used by unit
// tests and local development without Redis.
type MemoryBus struct {
	mu          sync.Mutex
	subscribers map[string][]chan Message
	kv          map[string]kvEntry
}

type kvEntry struct {
	value   []byte
	expires time.Time // zero = no expiry
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subscribers: map[string][]chan Message{},
		kv:          map[string]kvEntry{},
	}
}

func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subscribers[channel] {
		select {
		case ch <- Message{Channel: channel, Payload: payload}:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(chan Message, 64)
	for _, channel := range channels {
		b.subscribers[channel] = append(b.subscribers[channel], out)
	}
	return &memorySubscription{bus: b, channels: channels, out: out}, nil
}

type memorySubscription struct {
	bus      *MemoryBus
	channels []string
	out      chan Message
	closed   bool
}

func (s *memorySubscription) Channel() <-chan Message { return s.out }

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, channel := range s.channels {
		subs := s.bus.subscribers[channel]
		for i, ch := range subs {
			if ch == s.out {
				s.bus.subscribers[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	close(s.out)
	return nil
}

func (b *MemoryBus) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.kv[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		delete(b.kv, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (b *MemoryBus) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	b.kv[key] = kvEntry{value: value, expires: expires}
	return nil
}

func (b *MemoryBus) Close() error { return nil }
