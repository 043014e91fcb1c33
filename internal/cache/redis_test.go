package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	ctr, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	uri, err := ctr.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("parse redis url %q: %v", uri, err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisHeatmapCache(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	c := NewRedisHeatmapCache(client, time.Minute)

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	event, other := uuid.New(), uuid.New()
	k1 := Key(event, "penalized", nil)
	k2 := Key(event, "count", []string{"bob"})
	k3 := Key(other, "penalized", nil)

	if _, ok, err := c.Get(ctx, k1); ok || err != nil {
		t.Fatalf("Get before Set: hit=%v err=%v", ok, err)
	}

	for _, k := range []string{k1, k2, k3} {
		if err := c.Set(ctx, k, []byte(`{"cells":[]}`)); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}

	body, ok, err := c.Get(ctx, k1)
	if err != nil || !ok {
		t.Fatalf("Get: hit=%v err=%v", ok, err)
	}
	if string(body) != `{"cells":[]}` {
		t.Errorf("body: got %s", body)
	}

	ttl, err := client.TTL(ctx, k1).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL: got %v, want (0, 1m]", ttl)
	}

	if err := c.InvalidateEvent(ctx, event); err != nil {
		t.Fatalf("InvalidateEvent: %v", err)
	}
	for _, k := range []string{k1, k2} {
		if _, ok, _ := c.Get(ctx, k); ok {
			t.Errorf("%s should be invalidated", k)
		}
	}
	if _, ok, _ := c.Get(ctx, k3); !ok {
		t.Error("other event's entry should survive")
	}
}
