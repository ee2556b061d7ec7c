package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fbik/avito-monitor-app/pkg/models"
)

// RedisRelay publishes each event as a JSON frame on a pub/sub channel.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisRelay(client redis.UniversalClient, channel string) *RedisRelay {
	return &RedisRelay{
		client:  client,
		channel: channel,
	}
}

func (r *RedisRelay) Name() string {
	return "redis"
}

func (r *RedisRelay) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Kind, err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", r.channel, err)
	}
	return nil
}
