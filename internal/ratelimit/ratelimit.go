// Package ratelimit throttles callers with one token bucket per client key.
// The bucket table is bounded; the least recently seen client is evicted
// first and starts over with a full bucket when it returns.
package ratelimit

import (
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds the bucket table when no size is given.
const DefaultMaxClients = 10000

// Limiter hands out per-client token buckets. A nil *Limiter allows
// everything.
type Limiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets *lru.Cache[string, *rate.Limiter]
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter refilling rps tokens per second up to burst. It
// returns nil when rps is not positive, which disables limiting.
func New(rps float64, burst, maxClients int, opts ...Option) (*Limiter, error) {
	if rps <= 0 {
		return nil, nil
	}
	if burst < 1 {
		burst = 1
	}
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	cache, err := lru.New[string, *rate.Limiter](maxClients)
	if err != nil {
		return nil, err
	}
	l := &Limiter{limit: rate.Limit(rps), burst: burst, buckets: cache, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow takes one token from key's bucket. When the bucket is empty it
// returns false and how long the caller should wait before retrying.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Add(key, b)
	}
	l.mu.Unlock()

	r := b.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// RetryAfterSeconds renders a wait as a Retry-After header value, rounded
// up to whole seconds and never below one.
func RetryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Len reports how many clients currently hold a bucket.
func (l *Limiter) Len() int {
	if l == nil {
		return 0
	}
	return l.buckets.Len()
}
