// Package cache stores rendered heat-map responses so repeated reads of an
// unchanged event skip aggregation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const keyPrefix = "heatmap_v1"

// HeatmapCache caches encoded heat-map bodies keyed by Key.
type HeatmapCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, body []byte) error
	InvalidateEvent(ctx context.Context, eventID uuid.UUID) error
}

// Key builds the cache key for one heat-map view. excluded is order
// insensitive.
func Key(eventID uuid.UUID, scheme string, excluded []string) string {
	members := append([]string(nil), excluded...)
	sort.Strings(members)
	sum := sha256.Sum256([]byte(strings.Join(members, "\x00")))
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, eventID, scheme, hex.EncodeToString(sum[:8]))
}

func eventPattern(eventID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:*", keyPrefix, eventID)
}

// Nop is a HeatmapCache that never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error         { return nil }
func (Nop) InvalidateEvent(context.Context, uuid.UUID) error  { return nil }

// RedisHeatmapCache implements HeatmapCache on Redis with a fixed TTL.
type RedisHeatmapCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisHeatmapCache wraps an existing client.
func NewRedisHeatmapCache(client *redis.Client, ttl time.Duration) *RedisHeatmapCache {
	return &RedisHeatmapCache{client: client, ttl: ttl}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisHeatmapCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisHeatmapCache(client, ttl), nil
}

func (c *RedisHeatmapCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	body, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return body, true, nil
}

func (c *RedisHeatmapCache) Set(ctx context.Context, key string, body []byte) error {
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// InvalidateEvent deletes every cached view of the event.
func (c *RedisHeatmapCache) InvalidateEvent(ctx context.Context, eventID uuid.UUID) error {
	pattern := eventPattern(eventID)
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete %d keys for event %s: %w", len(keys), eventID, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping reports whether Redis is reachable.
func (c *RedisHeatmapCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisHeatmapCache) Close() error {
	return c.client.Close()
}
