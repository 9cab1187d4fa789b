package redis

import (
	"context"
	"testing"
	"time"

	"github.com/ggoodman/govdata-mcp/storage"
	"github.com/redis/go-redis/v9"
)

func TestRedisStore(t *testing.T) {
	// Skip test if Redis is not available
	client := redis.NewClient(&redis.Options{
		Addr: "127.0.0.1:6379",
		DB:   2, // Use separate DB for storage tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer client.FlushDB(ctx)

	s, err := New(Config{Client: client, KeyPrefix: "test:"})
	if err != nil {
		t.Fatalf("Failed to create Redis store: %v", err)
	}
	defer s.Close()

	t.Run("PutAndGet", func(t *testing.T) {
		if err := s.Put(ctx, storage.BucketKeySets, "current", []byte(`{"keys":[]}`), time.Minute); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		item, err := s.Get(ctx, storage.BucketKeySets, "current")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if item == nil || string(item.Data) != `{"keys":[]}` {
			t.Fatalf("unexpected item: %+v", item)
		}
		if item.ExpiresAt.IsZero() {
			t.Fatal("expected expiry to be recorded")
		}
		if got := client.TTL(ctx, "test:jwks:current").Val(); got <= 0 {
			t.Fatalf("expected redis ttl on key, got %v", got)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		item, err := s.Get(ctx, storage.BucketDiscovery, "https://nowhere")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if item != nil {
			t.Fatalf("expected miss, got %+v", item)
		}
	})

	t.Run("Expiry", func(t *testing.T) {
		if err := s.Put(ctx, storage.BucketDiscovery, "short", []byte("x"), 50*time.Millisecond); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
		time.Sleep(150 * time.Millisecond)
		item, err := s.Get(ctx, storage.BucketDiscovery, "short")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if item != nil {
			t.Fatal("expected item to expire")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = s.Put(ctx, storage.BucketKeySets, "gone", []byte("x"), 0)
		if err := s.Delete(ctx, storage.BucketKeySets, "gone"); err != nil {
			t.Fatalf("Delete() failed: %v", err)
		}
		if item, _ := s.Get(ctx, storage.BucketKeySets, "gone"); item != nil {
			t.Fatal("expected miss after delete")
		}
	})
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without client")
	}
}
