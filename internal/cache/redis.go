// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/typemasterhq/typemaster/internal/models"
)

// Rdb is the global Redis client. Connect it once at application startup;
// every helper here degrades to a no-op when it is nil, so the race service
// keeps running without Redis.
var Rdb *redis.Client

// DefaultResultsQueue is the Redis list external result listeners consume.
var DefaultResultsQueue = "typemaster_results"

// ConnectRedis initializes the global Redis client.
func ConnectRedis(addr string, db int) error {
	Rdb = redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := Rdb.Ping(ctx).Err(); err != nil {
		Rdb = nil
		return fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return nil
}

// PublishRaceResult serializes the final race outcome and pushes it onto the
// results queue for external persistence listeners.
func PublishRaceResult(ctx context.Context, record models.RaceResult) error {
	if Rdb == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal race result: %w", err)
	}
	queue := os.Getenv("RESULTS_QUEUE_NAME")
	if queue == "" {
		queue = DefaultResultsQueue
	}
	if err := Rdb.RPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush race result to %q: %w", queue, err)
	}
	return nil
}

// TextCache caches fetched race texts with a short TTL, mirroring the
// five-minute cache in front of the lorem/news upstreams.
type TextCache struct {
	ttl time.Duration
}

func NewTextCache() *TextCache {
	return &TextCache{ttl: 5 * time.Minute}
}

func (c *TextCache) GetText(ctx context.Context, key string) (string, bool) {
	if Rdb == nil {
		return "", false
	}
	val, err := Rdb.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *TextCache) SetText(ctx context.Context, key, value string) {
	if Rdb == nil {
		return
	}
	Rdb.Set(ctx, key, value, c.ttl)
}
