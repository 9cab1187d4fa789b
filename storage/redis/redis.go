// Package redis provides a storage.Store on top of Redis so several gateway
// processes can share fetched OIDC discovery documents and key sets.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ggoodman/govdata-mcp/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "govdata:auth:"

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance.
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys.
	// Default: DefaultKeyPrefix
	KeyPrefix string
}

// Store implements storage.Store using Redis.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

type storedItem struct {
	Data      []byte    `json:"data"`
	StoredAt  time.Time `json:"stored_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// New creates a Redis-backed store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultKeyPrefix
	}

	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, bucket storage.Bucket, key string) (*storage.Item, error) {
	if err := storage.Validate(bucket, key); err != nil {
		return nil, err
	}

	redisKey := s.buildKey(bucket, key)
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, err)
	}

	var item storedItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored data: %w", err)
	}

	out := &storage.Item{
		Data:      item.Data,
		StoredAt:  item.StoredAt,
		ExpiresAt: item.ExpiresAt,
	}
	// Redis expiry is authoritative; this guards against clock skew between
	// the writer and this process.
	if out.Expired(time.Now()) {
		return nil, nil
	}
	return out, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, bucket storage.Bucket, key string, data []byte, ttl time.Duration) error {
	if err := storage.Validate(bucket, key); err != nil {
		return err
	}

	now := time.Now()
	item := storedItem{Data: data, StoredAt: now}
	if ttl > 0 {
		item.ExpiresAt = now.Add(ttl)
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal storage item: %w", err)
	}

	redisKey := s.buildKey(bucket, key)
	if err := s.client.Set(ctx, redisKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, err)
	}
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, bucket storage.Bucket, key string) error {
	if err := storage.Validate(bucket, key); err != nil {
		return err
	}

	redisKey := s.buildKey(bucket, key)
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
	}
	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) buildKey(bucket storage.Bucket, key string) string {
	return s.keyPrefix + string(bucket) + ":" + key
}

var _ storage.Store = (*Store)(nil)
