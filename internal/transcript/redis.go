package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps transcript logs in a Redis list per key, letting
// multiple instances serve the same live stream. Every append refreshes
// the key TTL, so the log survives exactly as long as the call stays warm.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL overrides the log lifetime. Default is thirty minutes.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix overrides the key prefix. Default is "switchboard:transcript".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
		prefix: "switchboard:transcript",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) Append(ctx context.Context, key string, entry Entry) error {
	if key == "" {
		return ErrInvalidKey
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, s.key(key), data)
	pipe.Expire(ctx, s.key(key), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Range(ctx context.Context, key string, cursor int) ([]Entry, int, error) {
	if key == "" {
		return nil, cursor, ErrInvalidKey
	}
	if cursor < 0 {
		cursor = 0
	}
	raw, err := s.client.LRange(ctx, s.key(key), int64(cursor), -1).Result()
	if err != nil {
		return nil, cursor, fmt.Errorf("redis range failed: %w", err)
	}
	if len(raw) == 0 {
		return nil, cursor, nil
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			// A corrupt element is skipped but still advances the cursor.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, cursor + len(raw), nil
}
