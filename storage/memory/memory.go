// Package memory provides an in-process storage.Store bounded by
// github.com/hashicorp/golang-lru/v2.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/ggoodman/govdata-mcp/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxItems bounds the store when New is given a non-positive size.
const DefaultMaxItems = 1024

// Store implements storage.Store in memory. The LRU is internally
// synchronized so no extra locking is needed.
type Store struct {
	cache *lru.Cache[string, *storage.Item]
	now   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store holding at most maxItems entries.
func New(maxItems int, opts ...Option) (*Store, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Store{cache: cache, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, bucket storage.Bucket, key string) (*storage.Item, error) {
	if err := storage.Validate(bucket, key); err != nil {
		return nil, err
	}

	k := buildKey(bucket, key)
	item, ok := s.cache.Get(k)
	if !ok {
		return nil, nil
	}
	if item.Expired(s.now()) {
		s.cache.Remove(k)
		return nil, nil
	}

	out := *item
	out.Data = append([]byte(nil), item.Data...)
	return &out, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, bucket storage.Bucket, key string, data []byte, ttl time.Duration) error {
	if err := storage.Validate(bucket, key); err != nil {
		return err
	}

	now := s.now()
	item := &storage.Item{
		Data:     append([]byte(nil), data...),
		StoredAt: now,
	}
	if ttl > 0 {
		item.ExpiresAt = now.Add(ttl)
	}

	s.cache.Add(buildKey(bucket, key), item)
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, bucket storage.Bucket, key string) error {
	if err := storage.Validate(bucket, key); err != nil {
		return err
	}
	s.cache.Remove(buildKey(bucket, key))
	return nil
}

// Len reports the number of resident entries, expired ones included.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.cache.Purge()
	return nil
}

func buildKey(bucket storage.Bucket, key string) string {
	return string(bucket) + ":" + key
}

var _ storage.Store = (*Store)(nil)
