package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultChannel = "bots:changes"

// RedisBus fans change notifications out over a Redis pub/sub channel so
// every API instance sees mutations made through any other instance.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus builds a bus on the given Redis server.
func NewRedisBus(addr, password, channel string) *RedisBus {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = defaultChannel
	}
	return &RedisBus{
		client:  redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		channel: channel,
	}
}

// Publish sends an event to all subscribers.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe opens a pub/sub subscription that lives until ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					slog.Warn("dropping malformed change event", "err", err)
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
