package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/schemaguard/schemaguard/pkg/database"
)

// RedisEventStore persists raw access events in Redis lists keyed by
// day, with a TTL matching the retention window. It is the durable
// backend behind the in-memory ring; a cold restart can replay recent
// history from it out of band.
type RedisEventStore struct {
	redis         *database.Redis
	keyPrefix     string
	retentionDays int
}

// NewRedisEventStore wraps an established Redis connection.
func NewRedisEventStore(r *database.Redis, retentionDays int) *RedisEventStore {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &RedisEventStore{
		redis:         r,
		keyPrefix:     "schemaguard:events:",
		retentionDays: retentionDays,
	}
}

func (s *RedisEventStore) dayKey(t time.Time) string {
	return s.keyPrefix + t.UTC().Format("2006-01-02")
}

// SaveEvents appends events to their per-day lists.
func (s *RedisEventStore) SaveEvents(ctx context.Context, events []AccessEvent) error {
	client := s.redis.Client()
	pipe := client.Pipeline()

	touched := make(map[string]struct{})
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
		}
		key := s.dayKey(ev.Timestamp)
		pipe.RPush(ctx, key, payload)
		touched[key] = struct{}{}
	}
	for key := range touched {
		pipe.Expire(ctx, key, time.Duration(s.retentionDays)*24*time.Hour)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist events to redis: %w", err)
	}
	return nil
}

// LoadDay returns all persisted events for the given day.
func (s *RedisEventStore) LoadDay(ctx context.Context, day time.Time) ([]AccessEvent, error) {
	raw, err := s.redis.Client().LRange(ctx, s.dayKey(day), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events from redis: %w", err)
	}
	events := make([]AccessEvent, 0, len(raw))
	for _, item := range raw {
		var ev AccessEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close closes the underlying Redis connection.
func (s *RedisEventStore) Close() error {
	s.redis.Close()
	return nil
}
