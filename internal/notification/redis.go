package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes events as JSON on a pub/sub channel consumed by the realtime hub.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

// NewRedisNotifier constructs a publisher for channel.
func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Notify publishes the event.
func (n *RedisNotifier) Notify(ctx context.Context, event BalanceChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
