package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSubscriber mirrors lifecycle events onto a Redis stream for
// consumers outside this process.
type RedisStreamSubscriber struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamSubscriber builds the subscriber. maxLen <= 0 disables trimming.
func NewRedisStreamSubscriber(client *redis.Client, stream string, maxLen int64) *RedisStreamSubscriber {
	return &RedisStreamSubscriber{client: client, stream: stream, maxLen: maxLen}
}

// Name identifies the subscriber in logs and metrics.
func (s *RedisStreamSubscriber) Name() string {
	return "redis_stream:" + s.stream
}

// Handle appends the event to the stream.
func (s *RedisStreamSubscriber) Handle(ctx context.Context, event Event) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

func streamValues(event Event) (map[string]any, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
		"ticket_id":  event.TicketID,
		"body":       string(body),
	}, nil
}
