// Package storage provides the byte store behind the gateway's auth caches.
//
// OIDC discovery documents and JWKS key sets are written here so a fleet of
// gateway replicas can share what one of them fetched. Implementations keep
// items until their expiry and treat an expired item as absent.
package storage

import (
	"context"
	"errors"
	"time"
)

// Store is a bucketed key/value store with per-item expiry.
type Store interface {
	// Get returns the item stored under key, or nil when it is missing or
	// expired. An error is returned only for backend failures.
	Get(ctx context.Context, bucket Bucket, key string) (*Item, error)

	// Put replaces the item stored under key. A zero ttl stores the item
	// without expiry.
	Put(ctx context.Context, bucket Bucket, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket Bucket, key string) error

	// Close releases backend resources.
	Close() error
}

// Bucket groups keys of one kind.
type Bucket string

const (
	// BucketDiscovery holds OIDC discovery documents keyed by issuer.
	BucketDiscovery Bucket = "oidc-discovery"
	// BucketKeySets holds JWKS documents keyed by a fixed slot name.
	BucketKeySets Bucket = "jwks"
)

// Item is one stored value.
type Item struct {
	Data      []byte
	StoredAt  time.Time
	ExpiresAt time.Time // zero means no expiry
}

// Expired reports whether the item is past its expiry at now.
func (it *Item) Expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && !now.Before(it.ExpiresAt)
}

// ErrInvalidBucket is returned when a bucket or key is empty.
var ErrInvalidBucket = errors.New("storage: bucket and key are required")

// Validate checks the addressing arguments shared by every Store method.
func Validate(bucket Bucket, key string) error {
	if bucket == "" || key == "" {
		return ErrInvalidBucket
	}
	return nil
}
