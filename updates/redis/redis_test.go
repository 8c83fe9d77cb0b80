package redis

import (
	"context"
	"testing"

	"github.com/ggoodman/inspector-proxy-go/updates"
	"github.com/ggoodman/inspector-proxy-go/updates/storetest"
	"github.com/redis/go-redis/v9"
)

func TestRedisStore(t *testing.T) {
	// Skip test if Redis is not available
	probe := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   3,
	})
	if err := probe.Ping(context.Background()).Err(); err != nil {
		probe.Close()
		t.Skipf("Redis not available: %v", err)
	}
	defer probe.Close()

	storetest.RunStoreTests(t, func(t *testing.T) updates.Store {
		prefix := "test:updates:" + t.Name() + ":"
		t.Cleanup(func() {
			keys, err := probe.Keys(context.Background(), prefix+"*").Result()
			if err == nil && len(keys) > 0 {
				probe.Del(context.Background(), keys...)
			}
		})

		s, err := New(Config{
			Client:    redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379", DB: 3}),
			KeyPrefix: prefix,
		})
		if err != nil {
			t.Fatalf("Failed to create Redis store: %v", err)
		}
		return s
	})
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without client")
	}
}
