package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel prefix for all bus traffic, keeping pub/sub names disjoint
// from storage keys.
const channelPrefix = "relay:bus"

// RedisBus implements Bus over Redis pub/sub. Redis broadcasts each
// publish to every subscribed connection across the fleet, which is
// exactly the at-least-once, unordered fan-out the relay needs.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus creates a bus over the given Redis URL.
func NewRedisBus(url string, logger *slog.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return NewRedisBusWithClient(client, logger), nil
}

// NewRedisBusWithClient creates a bus over an existing client (for testing)
func NewRedisBusWithClient(client *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger.With(slog.String("component", "bus")),
	}
}

var _ Bus = (*RedisBus)(nil)

func channelName(channel Channel) string {
	return fmt.Sprintf("%s:%s", channelPrefix, channel)
}

// Publish broadcasts the payload to every subscriber in the fleet.
func (b *RedisBus) Publish(ctx context.Context, channel Channel, payload []byte) error {
	return b.client.Publish(ctx, channelName(channel), payload).Err()
}

// Subscribe opens a dedicated pub/sub connection for the channel and
// pumps messages into the handler until ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, channel Channel, handler Handler) error {
	sub := b.client.Subscribe(ctx, channelName(channel))

	// Confirm the subscription before returning so publishes that
	// follow Subscribe are not missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}

	go func() {
		defer func() { _ = sub.Close() }()
		ch := sub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Close closes the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
