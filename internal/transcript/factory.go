package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewStore creates a Redis-backed store when redisURL is set, otherwise an
// in-memory one. The Redis connection is verified at startup so a bad URL
// fails the boot rather than the first call.
func NewStore(ctx context.Context, redisURL string, ttl time.Duration) (Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		store := NewMemoryStore(ttl)
		store.StartJanitor(ctx, time.Minute)
		return store, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStore(client, WithTTL(ttl)), nil
}
