// Package jwks fetches and caches OIDC discovery documents and the signing
// key sets they point to.
//
// A Cache is built once at startup and handed to whatever verifies bearer
// tokens. Reads either return an unexpired entry or fetch synchronously;
// entries are replaced wholesale. Fetch failures are returned to the caller
// and never retried here.
package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"

	"github.com/ggoodman/govdata-mcp/internal/telemetry"
	"github.com/ggoodman/govdata-mcp/storage"
	"github.com/ggoodman/govdata-mcp/storage/memory"
)

const (
	// DiscoveryTTL is how long a discovery document stays fresh.
	DiscoveryTTL = time.Hour
	// MinKeyTTL is the floor applied to the configured key set TTL.
	MinKeyTTL = time.Minute

	discoveryPath = "/.well-known/openid-configuration"
	keySetSlot    = "current"
	maxBodyBytes  = 1 << 20
)

var (
	// ErrFetch wraps every failure to retrieve or decode remote key material.
	ErrFetch = errors.New("jwks: fetch failed")
	// ErrNoKeySetURL is returned when neither an override nor the discovery
	// document provides a JWKS location.
	ErrNoKeySetURL = errors.New("jwks: no jwks_uri available")
)

// Config configures a Cache.
type Config struct {
	// KeySetURL overrides the discovery document's jwks_uri when set.
	KeySetURL string
	// KeyTTL is the key set freshness window. Values below MinKeyTTL are
	// raised to MinKeyTTL.
	KeyTTL time.Duration

	HTTPClient *http.Client
	// Store holds fetched entries. Defaults to a small in-memory store.
	Store   storage.Store
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	// Now is the clock used for freshness checks. Defaults to time.Now.
	Now func() time.Time
}

// Cache is the process-wide holder of remote key material.
type Cache struct {
	keySetURL  string
	keyTTL     time.Duration
	client     *http.Client
	store      storage.Store
	log        *slog.Logger
	metrics    *telemetry.Metrics
	now        func() time.Time
	discoverMu sync.Mutex
	keysMu     sync.Mutex
}

type discoveryEntry struct {
	Issuer    string          `json:"issuer"`
	Document  json.RawMessage `json:"document"`
	ExpiresAt time.Time       `json:"expires_at"`
}

type keySetEntry struct {
	FetchedFrom string          `json:"fetched_from"`
	KeySet      json.RawMessage `json:"key_set"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// New creates a Cache from cfg.
func New(cfg Config) (*Cache, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Store == nil {
		st, err := memory.New(16, memory.WithClock(cfg.Now))
		if err != nil {
			return nil, err
		}
		cfg.Store = st
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Cache{
		keySetURL: cfg.KeySetURL,
		keyTTL:    EffectiveKeyTTL(cfg.KeyTTL),
		client:    cfg.HTTPClient,
		store:     cfg.Store,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}, nil
}

// EffectiveKeyTTL applies the MinKeyTTL floor.
func EffectiveKeyTTL(ttl time.Duration) time.Duration {
	return max(ttl, MinKeyTTL)
}

// DiscoverOIDCConfig returns the discovery document for issuer, fetching
// issuer + "/.well-known/openid-configuration" when the cached one is
// missing, stale or belongs to another issuer.
func (c *Cache) DiscoverOIDCConfig(ctx context.Context, issuer string) (*oidc.ProviderConfig, error) {
	issuer = strings.TrimRight(issuer, "/")
	if issuer == "" {
		return nil, fmt.Errorf("%w: issuer is required for discovery", ErrFetch)
	}

	c.discoverMu.Lock()
	defer c.discoverMu.Unlock()

	var entry discoveryEntry
	if c.read(ctx, storage.BucketDiscovery, issuer, &entry) && entry.Issuer == issuer && c.now().Before(entry.ExpiresAt) {
		var doc oidc.ProviderConfig
		if err := json.Unmarshal(entry.Document, &doc); err == nil {
			return &doc, nil
		}
	}

	body, err := c.fetch(ctx, "discovery", issuer+discoveryPath)
	if err != nil {
		return nil, err
	}
	var doc oidc.ProviderConfig
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid discovery document: %v", ErrFetch, err)
	}
	if doc.IssuerURL != "" && strings.TrimRight(doc.IssuerURL, "/") != issuer {
		c.log.WarnContext(ctx, "oidc.discovery.issuer_mismatch",
			slog.String("configured", issuer),
			slog.String("advertised", doc.IssuerURL))
	}

	c.write(ctx, storage.BucketDiscovery, issuer, discoveryEntry{
		Issuer:    issuer,
		Document:  body,
		ExpiresAt: c.now().Add(DiscoveryTTL),
	}, DiscoveryTTL)

	return &doc, nil
}

// LoadKeys returns the signing key set used to verify tokens from issuer.
// The JWKS location is the configured override or, failing that, the
// jwks_uri of the issuer's discovery document.
func (c *Cache) LoadKeys(ctx context.Context, issuer string) (*jose.JSONWebKeySet, error) {
	url := c.keySetURL
	if url == "" {
		doc, err := c.DiscoverOIDCConfig(ctx, issuer)
		if err != nil {
			return nil, err
		}
		if doc.JWKSURL == "" {
			return nil, ErrNoKeySetURL
		}
		url = doc.JWKSURL
	}

	c.keysMu.Lock()
	defer c.keysMu.Unlock()

	var entry keySetEntry
	if c.read(ctx, storage.BucketKeySets, keySetSlot, &entry) && entry.FetchedFrom == url && c.now().Before(entry.ExpiresAt) {
		var set jose.JSONWebKeySet
		if err := json.Unmarshal(entry.KeySet, &set); err == nil {
			return &set, nil
		}
	}

	body, err := c.fetch(ctx, "jwks", url)
	if err != nil {
		return nil, err
	}
	var set jose.JSONWebKeySet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("%w: invalid key set: %v", ErrFetch, err)
	}

	c.write(ctx, storage.BucketKeySets, keySetSlot, keySetEntry{
		FetchedFrom: url,
		KeySet:      body,
		ExpiresAt:   c.now().Add(c.keyTTL),
	}, c.keyTTL)

	return &set, nil
}

// Invalidate drops the cached key set so the next LoadKeys refetches it.
func (c *Cache) Invalidate(ctx context.Context) {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()

	if err := c.store.Delete(ctx, storage.BucketKeySets, keySetSlot); err != nil {
		c.log.WarnContext(ctx, "jwks.invalidate.fail", slog.String("err", err.Error()))
	}
}

// FindKey returns the signing key in set whose id is kid, or nil.
func FindKey(set *jose.JSONWebKeySet, kid string) *jose.JSONWebKey {
	if set == nil || kid == "" {
		return nil
	}
	for _, k := range set.Key(kid) {
		if k.Use == "" || k.Use == "sig" {
			return &k
		}
	}
	return nil
}

func (c *Cache) fetch(ctx context.Context, kind, url string) ([]byte, error) {
	start := time.Now()
	body, err := c.get(ctx, url)
	dur := time.Since(start)
	c.metrics.RecordFetch(ctx, kind, err, dur)
	if err != nil {
		c.log.WarnContext(ctx, kind+".fetch.fail",
			slog.String("url", url),
			slog.Duration("dur", dur),
			slog.String("err", err.Error()))
		return nil, err
	}
	c.log.DebugContext(ctx, kind+".fetch.ok",
		slog.String("url", url),
		slog.Int("bytes", len(body)),
		slog.Duration("dur", dur))
	return body, nil
}

func (c *Cache) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrFetch, url, err)
	}
	return body, nil
}

// read loads and decodes an entry. Store failures degrade to a miss.
func (c *Cache) read(ctx context.Context, bucket storage.Bucket, key string, into any) bool {
	item, err := c.store.Get(ctx, bucket, key)
	if err != nil {
		c.log.WarnContext(ctx, "jwks.store.get.fail", slog.String("bucket", string(bucket)), slog.String("err", err.Error()))
		return false
	}
	if item == nil {
		return false
	}
	if err := json.Unmarshal(item.Data, into); err != nil {
		c.log.WarnContext(ctx, "jwks.store.decode.fail", slog.String("bucket", string(bucket)), slog.String("err", err.Error()))
		return false
	}
	return true
}

// write stores an entry. A failed write leaves the fetched value usable for
// the current caller.
func (c *Cache) write(ctx context.Context, bucket storage.Bucket, key string, entry any, ttl time.Duration) {
	data, err := json.Marshal(entry)
	if err == nil {
		err = c.store.Put(ctx, bucket, key, data, ttl)
	}
	if err != nil {
		c.log.WarnContext(ctx, "jwks.store.put.fail", slog.String("bucket", string(bucket)), slog.String("err", err.Error()))
	}
}
