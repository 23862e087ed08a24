package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mcloones/rewards/internal/models"
)

// AwardQueue is the Redis list downstream consumers (notifications, dashboards) pop from
const AwardQueue = "rewards:award_events"

// AwardEvent is pushed once per committed award
type AwardEvent struct {
	Transaction models.Transaction `json:"transaction"`
	Balance     int64              `json:"balance"`
	PublishedAt time.Time          `json:"published_at"`
}

// Publisher announces committed awards
type Publisher interface {
	PublishAward(ctx context.Context, tx models.Transaction, balance int64) error
}

// RedisPublisher queues events on a Redis list
type RedisPublisher struct {
	redis *redis.Client
	queue string
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client, queue: AwardQueue}
}

func (p *RedisPublisher) PublishAward(ctx context.Context, tx models.Transaction, balance int64) error {
	data, err := json.Marshal(AwardEvent{
		Transaction: tx,
		Balance:     balance,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode award event: %w", err)
	}
	if err := p.redis.RPush(ctx, p.queue, string(data)).Err(); err != nil {
		return fmt.Errorf("queue award event: %w", err)
	}
	return nil
}

// NopPublisher drops events. Used when Redis is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishAward(context.Context, models.Transaction, int64) error { return nil }

// NewPublisher picks the Redis publisher when a client is available
func NewPublisher(client *redis.Client) Publisher {
	if client == nil {
		return NopPublisher{}
	}
	return NewRedisPublisher(client)
}
