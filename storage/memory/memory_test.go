package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/govdata-mcp/storage"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestPutGet(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Put(ctx, storage.BucketKeySets, "current", []byte("keys"), time.Minute); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	item, err := s.Get(ctx, storage.BucketKeySets, "current")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item == nil {
		t.Fatal("Get() returned nil item")
	}
	if string(item.Data) != "keys" {
		t.Fatalf("Get() returned wrong data: got %s, want keys", item.Data)
	}

	// Buckets do not alias each other.
	other, err := s.Get(ctx, storage.BucketDiscovery, "current")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if other != nil {
		t.Fatalf("expected miss in another bucket, got %q", other.Data)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := New(10)
	ctx := context.Background()
	_ = s.Put(ctx, storage.BucketKeySets, "k", []byte("abc"), 0)

	item, _ := s.Get(ctx, storage.BucketKeySets, "k")
	item.Data[0] = 'z'

	again, _ := s.Get(ctx, storage.BucketKeySets, "k")
	if string(again.Data) != "abc" {
		t.Fatalf("stored data mutated through returned item: %q", again.Data)
	}
}

func TestExpiry(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s, _ := New(10, WithClock(clk.now))
	ctx := context.Background()

	if err := s.Put(ctx, storage.BucketDiscovery, "https://issuer", []byte("doc"), time.Hour); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	clk.t = clk.t.Add(59 * time.Minute)
	if item, _ := s.Get(ctx, storage.BucketDiscovery, "https://issuer"); item == nil {
		t.Fatal("item expired early")
	}

	clk.t = clk.t.Add(time.Minute)
	if item, _ := s.Get(ctx, storage.BucketDiscovery, "https://issuer"); item != nil {
		t.Fatal("expected item to be expired at its deadline")
	}
	if s.Len() != 0 {
		t.Fatalf("expired item should be evicted on read, len=%d", s.Len())
	}
}

func TestDelete(t *testing.T) {
	s, _ := New(10)
	ctx := context.Background()
	_ = s.Put(ctx, storage.BucketKeySets, "k", []byte("v"), 0)

	if err := s.Delete(ctx, storage.BucketKeySets, "k"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := s.Delete(ctx, storage.BucketKeySets, "k"); err != nil {
		t.Fatalf("Delete() of missing key failed: %v", err)
	}
	if item, _ := s.Get(ctx, storage.BucketKeySets, "k"); item != nil {
		t.Fatal("expected miss after delete")
	}
}

func TestBound(t *testing.T) {
	s, _ := New(2)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		_ = s.Put(ctx, storage.BucketDiscovery, k, []byte(k), 0)
	}
	if s.Len() != 2 {
		t.Fatalf("expected LRU bound of 2, got %d", s.Len())
	}
	if item, _ := s.Get(ctx, storage.BucketDiscovery, "a"); item != nil {
		t.Fatal("oldest entry should have been evicted")
	}
}

func TestValidation(t *testing.T) {
	s, _ := New(2)
	ctx := context.Background()
	if _, err := s.Get(ctx, "", "k"); !errors.Is(err, storage.ErrInvalidBucket) {
		t.Fatalf("expected ErrInvalidBucket, got %v", err)
	}
	if err := s.Put(ctx, storage.BucketKeySets, "", nil, 0); !errors.Is(err, storage.ErrInvalidBucket) {
		t.Fatalf("expected ErrInvalidBucket, got %v", err)
	}
}
