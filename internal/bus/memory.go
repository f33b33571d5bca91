package bus

import (
	"context"
	"log/slog"
	"sync"
)

// subscriber is one registered handler with its delivery queue.
type subscriber struct {
	handler Handler
	queue   chan []byte
	done    chan struct{}
}

// MemoryBus is the in-process Bus implementation. It gives a
// single-instance deployment the same fan-out semantics the fleet gets
// from Redis: every subscriber on a channel, publisher included,
// receives each message. Messages for a subscriber whose queue is full
// are dropped with a warning; the bus never blocks a publisher.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[Channel][]*subscriber
	closed bool
	logger *slog.Logger
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[Channel][]*subscriber),
		logger: logger.With(slog.String("component", "bus")),
	}
}

var _ Bus = (*MemoryBus)(nil)

// Publish fans the payload out to every current subscriber.
func (b *MemoryBus) Publish(ctx context.Context, channel Channel, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}

	for _, sub := range b.subs[channel] {
		select {
		case sub.queue <- payload:
		default:
			b.logger.Warn("bus message dropped - subscriber queue full",
				slog.String("channel", string(channel)))
		}
	}
	return nil
}

// Subscribe registers a handler and starts its delivery loop.
func (b *MemoryBus) Subscribe(ctx context.Context, channel Channel, handler Handler) error {
	sub := &subscriber{
		handler: handler,
		queue:   make(chan []byte, 64),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case payload := <-sub.queue:
				sub.handler(payload)
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			}
		}
	}()

	return nil
}

// Close stops all delivery loops.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.done)
		}
	}
	b.subs = make(map[Channel][]*subscriber)
	return nil
}
